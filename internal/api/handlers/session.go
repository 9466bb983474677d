package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/api/middleware"
	"github.com/drfirst/go-intake/internal/domain/intake"
)

// SessionHandler exposes the intake wizard over HTTP.
type SessionHandler struct {
	store  *intake.Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewSessionHandler creates a new handler
func NewSessionHandler(store *intake.Store, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("intake-session-handler"),
	}
}

// Routes returns the handler routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Abandon)
		r.Post("/actions", h.Apply)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Post("/skip-feedback", h.SkipToFeedback)
		r.Get("/quote", h.Quote)
		r.Get("/events", h.Events)
	})
	return r
}

// Create handles POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctrl := h.store.Create()
	h.logger.Info("session created",
		zap.String("session_id", ctrl.ID()),
		zap.String("request_id", middleware.GetRequestID(r.Context())))
	writeJSON(w, http.StatusCreated, ctrl.View())
}

// Get handles GET /sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.View())
}

// Abandon handles DELETE /sessions/{id}
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Apply handles POST /sessions/{id}/actions with an action envelope body.
func (h *SessionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var env intake.Envelope
	if err := decodeBody(r, &env); err != nil {
		writeError(w, h.logger, err)
		return
	}
	action, err := intake.Decode(env)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.transition(w, r, string(action.Type()), func(ctx context.Context, c *intake.Controller) error {
		_, err := c.Dispatch(ctx, action)
		return err
	})
}

// Next handles POST /sessions/{id}/next. At checkout the request blocks until
// the order submission finishes; a client disconnect cancels the submission.
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, string(intake.ActionNext), func(ctx context.Context, c *intake.Controller) error {
		_, err := c.Next(ctx)
		return err
	})
}

// Back handles POST /sessions/{id}/back
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, string(intake.ActionBack), func(ctx context.Context, c *intake.Controller) error {
		_, err := c.Back(ctx)
		return err
	})
}

// SkipToFeedback handles POST /sessions/{id}/skip-feedback
func (h *SessionHandler) SkipToFeedback(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, string(intake.ActionSkipToFeedback), func(ctx context.Context, c *intake.Controller) error {
		_, err := c.SkipToFeedback(ctx)
		return err
	})
}

// Quote handles GET /sessions/{id}/quote
func (h *SessionHandler) Quote(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	q, err := ctrl.Quote()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Events handles GET /sessions/{id}/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Events())
}

func (h *SessionHandler) controller(w http.ResponseWriter, r *http.Request) (*intake.Controller, bool) {
	ctrl, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	return ctrl, true
}

// transition runs fn on the session and answers with the resulting view.
func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, *intake.Controller) error) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "intake."+name,
		trace.WithAttributes(attribute.String("session_id", ctrl.ID())))
	defer span.End()

	if err := fn(ctx, ctrl); err != nil {
		span.RecordError(err)
		writeError(w, h.logger, err)
		return
	}

	view := ctrl.View()
	span.SetAttributes(
		attribute.String("step", string(view.Step)),
		attribute.String("outcome", string(view.Outcome)))
	writeJSON(w, http.StatusOK, view)
}
