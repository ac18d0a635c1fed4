package users_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/roster/internal/shared"
	"github.com/odyssey-erp/roster/internal/users"
	"github.com/odyssey-erp/roster/internal/view"
	_ "github.com/odyssey-erp/roster/testing"
)

type harness struct {
	t        *testing.T
	sessions *shared.SessionManager
	service  *users.Service
	router   chi.Router
	sessID   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	service := users.NewService(users.NewRegistry(users.DefaultPageSize, time.Hour), nil, nil, users.ServiceConfig{BcryptCost: bcrypt.MinCost})
	handler := users.NewHandler(nil, service, templates, csrfManager, sessionManager)

	r := chi.NewRouter()
	r.Route("/users", handler.MountRoutes)
	r.Route("/api/users", handler.MountAPIRoutes)
	return &harness{t: t, sessions: sessionManager, service: service, router: r}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	h.t.Helper()
	if h.sessID != "" {
		req.AddCookie(&http.Cookie{Name: h.sessions.CookieName(), Value: h.sessID})
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(h.t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	require.NoError(h.t, h.sessions.Commit(ctx, res, sess))
	if sess.Destroyed() {
		h.sessID = ""
	} else {
		h.sessID = sess.ID
	}
	return res
}

func (h *harness) get(target string) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (h *harness) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) sendJSON(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func userForm(name string) url.Values {
	return url.Values{
		"name":     {name},
		"email":    {strings.ToLower(name) + "@school.test"},
		"contact":  {"555-0100"},
		"password": {"hunter22"},
		"role":     {"student"},
	}
}

func TestListUsersHidesTableWhenEmpty(t *testing.T) {
	h := newHarness(t)

	res := h.get("/users/")

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Add User")
	assert.NotContains(t, body, "<table")
	assert.NotContains(t, body, "<dialog")
}

func TestListUsersOpensModal(t *testing.T) {
	h := newHarness(t)

	res := h.get("/users/?add=1")

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<dialog")
	assert.Contains(t, body, `<option value="student" selected>Student</option>`)
	assert.Contains(t, body, `<option value="instructor">Instructor</option>`)
	assert.Contains(t, body, `type="password"`)
}

func TestCreateUserRedirectsAndLists(t *testing.T) {
	h := newHarness(t)
	h.get("/users/")

	res := h.postForm("/users/", userForm("Ann"))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/users", res.Header().Get("Location"))

	page := h.get("/users/")
	body := page.Body.String()
	assert.Contains(t, body, "<table")
	assert.Contains(t, body, "<td>Ann</td>")
	assert.Contains(t, body, "<td>ann@school.test</td>")
	assert.Contains(t, body, "<td>student</td>")
	assert.Regexp(t, `<td class="added-at">\d{2} \w{3} \d{4} \d{2}:\d{2}</td>`, body)
	assert.Contains(t, body, "Added Ann")
	assert.NotContains(t, body, "hunter22")
	assert.NotContains(t, body, "$2a$")
	assert.NotContains(t, body, "<dialog", "modal closes after submit")
}

func TestCreateUserValidationKeepsDraft(t *testing.T) {
	h := newHarness(t)
	form := userForm("Ann")
	form.Set("name", "")

	res := h.postForm("/users/", form)

	require.Equal(t, http.StatusBadRequest, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<dialog")
	assert.Contains(t, body, "Name is required")
	assert.Contains(t, body, `value="ann@school.test"`)
	assert.NotContains(t, body, "hunter22")

	v, err := h.service.View(context.Background(), h.sessID)
	require.NoError(t, err)
	assert.Zero(t, v.Total)
}

func TestPaginationThroughForms(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 12; i++ {
		res := h.postForm("/users/", userForm(fmt.Sprintf("U%d", i)))
		require.Equal(t, http.StatusSeeOther, res.Code)
	}

	body := h.get("/users/").Body.String()
	assert.Contains(t, body, "<td>U1</td>")
	assert.Contains(t, body, "<td>U10</td>")
	assert.NotContains(t, body, "<td>U11</td>")
	assert.Contains(t, body, `<span class="active-page">1</span>`)

	res := h.postForm("/users/page", url.Values{"dir": {"next"}})
	require.Equal(t, http.StatusSeeOther, res.Code)

	body = h.get("/users/").Body.String()
	assert.Contains(t, body, "<td>U11</td>")
	assert.Contains(t, body, "<td>U12</td>")
	assert.NotContains(t, body, "<td>U3</td>")
	assert.Contains(t, body, `<span class="active-page">2</span>`)

	h.postForm("/users/page", url.Values{"dir": {"next"}})
	v, err := h.service.View(context.Background(), h.sessID)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Page, "next on the last page is a no-op")

	h.postForm("/users/page", url.Values{"page": {"1"}})
	h.postForm("/users/page", url.Values{"dir": {"prev"}})
	v, err = h.service.View(context.Background(), h.sessID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Page)
}

func TestDeleteUserThroughForm(t *testing.T) {
	h := newHarness(t)
	h.postForm("/users/", userForm("Ann"))
	h.postForm("/users/", userForm("Ben"))

	v, err := h.service.View(context.Background(), h.sessID)
	require.NoError(t, err)
	require.Len(t, v.Rows, 2)

	res := h.postForm("/users/"+v.Rows[0].ID.String()+"/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.Code)

	body := h.get("/users/").Body.String()
	assert.NotContains(t, body, "<td>Ann</td>")
	assert.Contains(t, body, "<td>Ben</td>")
	assert.Contains(t, body, "User deleted")

	h.postForm("/users/"+v.Rows[0].ID.String()+"/delete", url.Values{})
	body = h.get("/users/").Body.String()
	assert.Contains(t, body, "User no longer exists")
	assert.NotContains(t, body, "Added Ann", "shown flashes are not repeated")

	assert.NotContains(t, h.get("/users/").Body.String(), "flash-")
}

func TestAnonymousReadsDoNotCreateRosters(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 50; i++ {
		h.sessID = ""
		require.Equal(t, http.StatusOK, h.get("/users/").Code)
		require.Equal(t, http.StatusOK, h.get("/api/users/").Code)
	}
	assert.Zero(t, h.service.ActiveRosters())

	h.postForm("/users/", userForm("Ann"))
	assert.Equal(t, 1, h.service.ActiveRosters())
}

func TestResetDiscardsRoster(t *testing.T) {
	h := newHarness(t)
	h.postForm("/users/", userForm("Ann"))
	require.Equal(t, 1, h.service.ActiveRosters())

	res := h.postForm("/users/reset", url.Values{})

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, 0, h.service.ActiveRosters())
	assert.NotContains(t, h.get("/users/").Body.String(), "<td>Ann</td>")
}

func TestAPIRoundTrip(t *testing.T) {
	h := newHarness(t)

	res := h.get("/api/users/")
	require.Equal(t, http.StatusOK, res.Code)
	assert.NotEmpty(t, res.Header().Get(shared.CSRFHeader))

	res = h.sendJSON(http.MethodPost, "/api/users/", `{"name":"Ann","email":"ann@school.test","contact":"1","password":"pw","role":"instructor"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	assert.NotContains(t, res.Body.String(), "password")
	var created users.Record
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, users.RoleInstructor, created.Role)

	res = h.sendJSON(http.MethodPost, "/api/users/page", `{"dir":"next"}`)
	require.Equal(t, http.StatusOK, res.Code)
	var v users.View
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &v))
	assert.Equal(t, 1, v.Page)
	assert.Equal(t, 1, v.Total)
	assert.True(t, v.Visible)

	res = h.sendJSON(http.MethodDelete, "/api/users/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = h.sendJSON(http.MethodDelete, "/api/users/"+created.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = h.sendJSON(http.MethodDelete, "/api/users/nope", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAPIDeleteAtPosition(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"Ann", "Ben", "Cid"} {
		res := h.sendJSON(http.MethodPost, "/api/users/", fmt.Sprintf(`{"name":%q,"email":"x@school.test","contact":"1","password":"pw"}`, name))
		require.Equal(t, http.StatusCreated, res.Code)
	}

	res := h.sendJSON(http.MethodDelete, "/api/users/at/1", "")
	require.Equal(t, http.StatusNoContent, res.Code)

	v, err := h.service.View(context.Background(), h.sessID)
	require.NoError(t, err)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "Ann", v.Rows[0].Name)
	assert.Equal(t, "Cid", v.Rows[1].Name)

	assert.Equal(t, http.StatusBadRequest, h.sendJSON(http.MethodDelete, "/api/users/at/2", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.sendJSON(http.MethodDelete, "/api/users/at/x", "").Code)
}

func TestAPICreateValidation(t *testing.T) {
	h := newHarness(t)

	res := h.sendJSON(http.MethodPost, "/api/users/", `{"name":"Ann"}`)

	require.Equal(t, http.StatusBadRequest, res.Code)
	var problem struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &problem))
	assert.Equal(t, "is required", problem.Errors["email"])
	assert.NotContains(t, problem.Errors, "name")
}

func TestAPIPageRejectsUnknownDirection(t *testing.T) {
	h := newHarness(t)
	res := h.sendJSON(http.MethodPost, "/api/users/page", `{"dir":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
