package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// OpRecorder counts roster operations.
type OpRecorder interface {
	RosterOp(op string)
}

// ServiceConfig tunes the Service.
type ServiceConfig struct {
	// BcryptCost is the cost used to hash submitted passwords. Zero means bcrypt.DefaultCost.
	BcryptCost int
}

// Service validates submitted drafts and applies roster operations for a session.
type Service struct {
	registry   *Registry
	validate   *validator.Validate
	bcryptCost int
	metrics    OpRecorder
	logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(registry *Registry, logger *slog.Logger, metrics OpRecorder, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		registry:   registry,
		validate:   newValidator(),
		bcryptCost: cost,
		metrics:    metrics,
		logger:     logger,
	}
}

// Add validates the draft and appends it to the session's roster, creating the roster on first use.
// The password is stored as a bcrypt hash.
func (s *Service) Add(ctx context.Context, sessionID string, draft Draft) (Record, error) {
	draft = draft.normalised()
	if err := validateDraft(s.validate, draft); err != nil {
		return Record{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(draft.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Record{}, &ValidationError{Fields: map[string]string{"password": "must be at most 72 bytes"}}
		}
		return Record{}, fmt.Errorf("users: hash password: %w", err)
	}

	var added Record
	err = s.registry.With(sessionID, func(st *Store) error {
		added = st.Add(Record{
			Name:     draft.Name,
			Email:    draft.Email,
			Contact:  draft.Contact,
			Password: string(hash),
			Role:     Role(draft.Role),
		})
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	s.count("add")
	s.logger.DebugContext(ctx, "roster record added", slog.String("record_id", added.ID.String()), slog.String("role", string(added.Role)))
	return added, nil
}

// Delete removes a record by id.
func (s *Service) Delete(ctx context.Context, sessionID string, id uuid.UUID) error {
	err := s.registry.Peek(sessionID, func(st *Store) error {
		return st.Delete(id)
	})
	if err != nil {
		return err
	}
	s.count("delete")
	s.logger.DebugContext(ctx, "roster record deleted", slog.String("record_id", id.String()))
	return nil
}

// DeleteAt removes a record by its absolute position.
func (s *Service) DeleteAt(ctx context.Context, sessionID string, index int) error {
	err := s.registry.Peek(sessionID, func(st *Store) error {
		return st.DeleteAt(index)
	})
	if err != nil {
		return err
	}
	s.count("delete")
	return nil
}

// NextPage advances the session's roster one page.
func (s *Service) NextPage(ctx context.Context, sessionID string) (View, error) {
	return s.navigate(sessionID, "next", (*Store).NextPage)
}

// PrevPage moves the session's roster back one page.
func (s *Service) PrevPage(ctx context.Context, sessionID string) (View, error) {
	return s.navigate(sessionID, "prev", (*Store).PrevPage)
}

// SetPage jumps to page, clamped to the existing pages.
func (s *Service) SetPage(ctx context.Context, sessionID string, page int) (View, error) {
	return s.navigate(sessionID, "page", func(st *Store) { st.SetPage(page) })
}

func (s *Service) navigate(sessionID, op string, move func(*Store)) (View, error) {
	var v View
	err := s.registry.Peek(sessionID, func(st *Store) error {
		move(st)
		v = st.View()
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.count(op)
	return v, nil
}

// View snapshots the session's roster.
func (s *Service) View(ctx context.Context, sessionID string) (View, error) {
	var v View
	err := s.registry.Peek(sessionID, func(st *Store) error {
		v = st.View()
		return nil
	})
	return v, err
}

// EndSession discards the session's roster.
func (s *Service) EndSession(ctx context.Context, sessionID string) {
	if s.registry.Discard(sessionID) {
		s.count("discard")
		s.logger.InfoContext(ctx, "roster discarded", slog.Int("remaining", s.registry.Len()))
	}
}

// ActiveRosters returns the number of sessions holding a roster.
func (s *Service) ActiveRosters() int {
	return s.registry.Len()
}

func (s *Service) count(op string) {
	if s.metrics != nil {
		s.metrics.RosterOp(op)
	}
}
