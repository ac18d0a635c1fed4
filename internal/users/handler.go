package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/roster/internal/platform/httpx"
	"github.com/odyssey-erp/roster/internal/shared"
	"github.com/odyssey-erp/roster/internal/view"
)

// Handler serves the roster page and its JSON counterpart.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions}
}

// MountRoutes registers the HTML routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Post("/page", h.changePage)
	r.Post("/reset", h.endSession)
	r.Post("/{id}/delete", h.deleteUser)
}

// MountAPIRoutes registers the JSON routes.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Get("/", h.apiView)
	r.Post("/", h.apiCreate)
	r.Post("/page", h.apiPage)
	r.Delete("/{id}", h.apiDelete)
	r.Delete("/at/{index}", h.apiDeleteAt)
}

type formErrors map[string]string

type listPage struct {
	View      View
	Form      Draft
	Errors    formErrors
	ShowModal bool
	Roles     []Role
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.View(r.Context(), sessionID(r))
	if err != nil {
		h.logger.Error("load roster failed", slog.Any("error", err))
		h.render(w, r, listPage{Errors: formErrors{"general": shared.UserSafeMessage(err)}, Roles: Roles}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, listPage{
		View:      v,
		Form:      Draft{Role: string(RoleStudent)},
		Errors:    formErrors{},
		ShowModal: r.URL.Query().Get("add") == "1",
		Roles:     Roles,
	}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	draft := Draft{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Contact:  r.PostFormValue("contact"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
	}

	added, err := h.service.Add(r.Context(), sessionID(r), draft)
	if err != nil {
		var invalid *ValidationError
		if !errors.As(err, &invalid) {
			h.logger.Error("add roster record failed", slog.Any("error", err))
			h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
			return
		}
		v, viewErr := h.service.View(r.Context(), sessionID(r))
		if viewErr != nil {
			h.logger.Error("load roster failed", slog.Any("error", viewErr))
		}
		draft.Password = ""
		h.render(w, r, listPage{
			View:      v,
			Form:      draft,
			Errors:    formErrors(invalid.Fields),
			ShowModal: true,
			Roles:     Roles,
		}, http.StatusBadRequest)
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Added "+added.Name)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.redirectWithFlash(w, r, "/users", "error", "Invalid user reference")
		return
	}
	if err := h.service.Delete(r.Context(), sessionID(r), id); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			h.redirectWithFlash(w, r, "/users", "error", "User no longer exists")
			return
		}
		h.logger.Error("delete roster record failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User deleted")
}

func (h *Handler) changePage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx, id := r.Context(), sessionID(r)
	var err error
	switch dir := r.PostFormValue("dir"); dir {
	case "next":
		_, err = h.service.NextPage(ctx, id)
	case "prev":
		_, err = h.service.PrevPage(ctx, id)
	default:
		page, convErr := strconv.Atoi(r.PostFormValue("page"))
		if convErr != nil {
			h.redirectWithFlash(w, r, "/users", "error", "Invalid page")
			return
		}
		_, err = h.service.SetPage(ctx, id, page)
	}
	if err != nil {
		h.logger.Error("change roster page failed", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/users", "error", shared.UserSafeMessage(err))
		return
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.service.EndSession(r.Context(), sess.ID)
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

type pageRequest struct {
	Dir  string `json:"dir"`
	Page *int   `json:"page"`
}

func (h *Handler) apiView(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.View(r.Context(), sessionID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.exposeCSRF(w, r)
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := httpx.DecodeJSON(r, &draft); err != nil {
		httpx.RespondError(w, err)
		return
	}
	added, err := h.service.Add(r.Context(), sessionID(r), draft)
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("add roster record failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, added)
}

func (h *Handler) apiDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	if err := h.service.Delete(r.Context(), sessionID(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiDeleteAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid row index")
		return
	}
	if err := h.service.DeleteAt(r.Context(), sessionID(r), index); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, id := r.Context(), sessionID(r)
	var (
		v   View
		err error
	)
	switch {
	case req.Dir == "next":
		v, err = h.service.NextPage(ctx, id)
	case req.Dir == "prev":
		v, err = h.service.PrevPage(ctx, id)
	case req.Dir == "" && req.Page != nil:
		v, err = h.service.SetPage(ctx, id, *req.Page)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", `expected "dir" of next or prev, or "page"`)
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) exposeCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return
	}
	if token, err := h.csrf.EnsureToken(r.Context(), sess); err == nil {
		w.Header().Set(shared.CSRFHeader, token)
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data listPage, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flashes []shared.FlashMessage
	if sess != nil {
		flashes = sess.PopFlashes()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flashes: flashes, CurrentPath: r.URL.Path, Data: data}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/users/list.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func sessionID(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.ID
	}
	return ""
}
