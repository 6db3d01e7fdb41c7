// Package api exposes HTTP handlers for the enrollment service.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"example.com/enrollment/internal/auth"
	"example.com/enrollment/internal/domain"
)

const (
	signupSuffix       = "/signup"
	participantsSuffix = "/participants"
)

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithLogger overrides the logger used to report unexpected errors.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAuth requires a staff token granting enrollments:write on signup and unregister.
// Listing the catalog and the UI stay public.
func WithAuth(verifier *auth.Verifier) Option {
	return func(h *Handler) {
		h.guard = auth.Require(verifier, auth.ScopeEnrollmentsWrite, writeError)
	}
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *log.Logger
	guard   func(http.Handler) http.Handler
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  log.New(log.Writer(), "[api] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/activities", h.activities)
	mux.HandleFunc("/activities/", h.activityAction)
	mux.HandleFunc("/healthz", healthz)
	mux.Handle("/static/", staticHandler())
	mux.HandleFunc("/", index)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	http.Redirect(w, r, "/static/index.html", http.StatusTemporaryRedirect)
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	catalog := h.service.ListActivities(r.Context())
	resp := make(ActivitiesResponse, len(catalog))
	for name, activity := range catalog {
		resp[name] = toActivityView(activity)
	}
	writeJSON(w, http.StatusOK, resp)
}

// activityAction dispatches /activities/{name}/signup and /activities/{name}/participants.
func (h *Handler) activityAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/activities/")

	if name, ok := strings.CutSuffix(rest, signupSuffix); ok && name != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.protect(func(w http.ResponseWriter, r *http.Request) { h.signup(w, r, name) }).ServeHTTP(w, r)
		return
	}
	if name, ok := strings.CutSuffix(rest, participantsSuffix); ok && name != "" {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		h.protect(func(w http.ResponseWriter, r *http.Request) { h.unregister(w, r, name) }).ServeHTTP(w, r)
		return
	}
	writeError(w, http.StatusNotFound, "not_found", "route not found")
}

// protect applies the auth guard to a membership change when one is configured.
func (h *Handler) protect(fn http.HandlerFunc) http.Handler {
	if h.guard == nil {
		return fn
	}
	return h.guard(fn)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request, activity string) {
	conf, err := h.service.Enroll(r.Context(), activity, r.URL.Query().Get("email"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.audit(r, conf)
	writeJSON(w, http.StatusOK, MessageResponse{Message: conf.Message, Status: "ok"})
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request, activity string) {
	conf, err := h.service.Remove(r.Context(), activity, r.URL.Query().Get("email"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.audit(r, conf)
	writeJSON(w, http.StatusOK, MessageResponse{Message: conf.Message, Status: "ok"})
}

// audit records which staff member performed a change when auth is enabled.
func (h *Handler) audit(r *http.Request, conf domain.Confirmation) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		h.logger.Printf("%s (subject=%s)", conf.Message, p.Subject)
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var enrollErr *domain.EnrollmentError
	switch {
	case errors.As(err, &enrollErr) && enrollErr.Reason == domain.ReasonNoParticipant:
		writeError(w, http.StatusNotFound, string(enrollErr.Kind), "Student is not signed up for this activity")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, string(domain.KindNotFound), "Activity not found")
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		writeError(w, http.StatusBadRequest, string(domain.KindAlreadyEnrolled), "Student is already signed up")
	case errors.Is(err, domain.ErrActivityFull):
		writeError(w, http.StatusConflict, string(domain.KindFull), "Activity is full")
	case errors.Is(err, domain.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, string(domain.KindInvalid), "Email is required")
	default:
		h.logger.Printf("unexpected enrollment error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ActivitiesResponse is the body of GET /activities, keyed by activity name.
type ActivitiesResponse map[string]ActivityView

// ActivityView exposes one catalog entry.
type ActivityView struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
	SpotsLeft       int      `json:"spots_left"`
}

// MessageResponse describes the body returned by signup and unregister.
type MessageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	participants := a.Participants
	if participants == nil {
		participants = []string{}
	}
	return ActivityView{
		Description:     a.Description,
		Schedule:        a.Schedule,
		MaxParticipants: a.MaxParticipants,
		Participants:    participants,
		SpotsLeft:       a.SpotsLeft(),
	}
}
