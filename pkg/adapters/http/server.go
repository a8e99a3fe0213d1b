// Package http exposes a canopy engine as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/validator"
	"github.com/aretw0/canopy/pkg/domain"
)

// MaxBodySize caps request bodies.
const MaxBodySize = 64 << 10

// Engine is the subset of canopy.Engine served over HTTP.
type Engine interface {
	Current(ctx context.Context, sessionID string) (canopy.View, error)
	Submit(ctx context.Context, sessionID string, raw domain.RawInput) (canopy.Result, error)
	GoBack(ctx context.Context, sessionID string) (canopy.View, error)
	Reset(ctx context.Context, sessionID string) (canopy.View, error)
	Delete(ctx context.Context, sessionID string) error
	Stages() []domain.Stage
}

var _ Engine = (*canopy.Engine)(nil)

// Server holds the handler dependencies.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger *slog.Logger
	newID  func() string
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIDGenerator overrides how POST /sessions names new sessions.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) {
		s.newID = fn
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	server := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/stages", server.GetStages)
	r.Post("/sessions", server.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", server.GetSession)
		r.Delete("/", server.DeleteSession)
		r.Post("/submit", server.Submit)
		r.Post("/back", server.GoBack)
		r.Post("/reset", server.Reset)
		r.Get("/events", server.SubscribeEvents)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorBody is the JSON error payload.
type ErrorBody struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	ParameterID string `json:"parameter_id,omitempty"`
}

// SubmitResponse is returned by POST /sessions/{id}/submit.
type SubmitResponse struct {
	Result canopy.Result `json:"result"`
	Error  *ErrorBody    `json:"error,omitempty"`
	View   canopy.View   `json:"view"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "canopy-http",
		"version": strings.TrimSpace(canopy.Version),
	})
}

// GetStages handles GET /stages.
func (s *Server) GetStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Stages())
}

// CreateSession handles POST /sessions. The new session starts at stage 1.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := s.newID()
	view, err := s.Engine.Current(r.Context(), id)
	if err != nil {
		s.fail(w, "CreateSession", err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	writeJSON(w, http.StatusCreated, view)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	view, err := s.Engine.Current(r.Context(), id)
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if err := s.Engine.Delete(r.Context(), id); err != nil {
		s.fail(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit handles POST /sessions/{id}/submit. It accepts a JSON RawInput or
// an HTML form with selection, from_value and to_value fields. Successful
// form posts are answered with 303 See Other so a browser refresh never
// resubmits.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	form := isForm(r)
	raw, err := decodeInput(w, r, form)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
		s.logger.Warn("Submit: invalid request body", "session_id", id, "err", err)
		return
	}

	res, err := s.Engine.Submit(r.Context(), id, raw)
	if err != nil {
		s.fail(w, "Submit", err)
		return
	}

	view, err := s.Engine.Current(r.Context(), id)
	if err != nil {
		s.fail(w, "Submit", err)
		return
	}
	if res.Advanced {
		s.broadcast(id, view)
	}

	if res.Error == nil && form {
		http.Redirect(w, r, "/sessions/"+id, http.StatusSeeOther)
		return
	}

	resp := SubmitResponse{Result: res, View: view}
	status := http.StatusOK
	if res.Error != nil {
		status = submitStatus(res.Error)
		resp.Error = errorBody(res.Error)
	}
	writeJSON(w, status, resp)
}

// GoBack handles POST /sessions/{id}/back.
func (s *Server) GoBack(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, "GoBack", s.Engine.GoBack)
}

// Reset handles POST /sessions/{id}/reset.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, "Reset", s.Engine.Reset)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string) (canopy.View, error)) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	view, err := fn(r.Context(), id)
	if err != nil {
		s.fail(w, op, err)
		return
	}
	s.broadcast(id, view)
	if isForm(r) {
		http.Redirect(w, r, "/sessions/"+id, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) broadcast(id string, view canopy.View) {
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.Error("Failed to encode view for stream", "session_id", id, "err", err)
		return
	}
	s.Streams.Broadcast(id, string(data))
}

// SubscribeEvents handles GET /sessions/{id}/events (SSE). Each change to the
// session is pushed as one data frame holding the new view.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client subscribed", "session_id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "session_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validSessionID(id) {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid session id"})
		return "", false
	}
	return id, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRevisionConflict):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Warn(op+" failed", "err", err)
	}
	writeJSON(w, status, ErrorBody{Error: err.Error()})
}

func submitStatus(err error) int {
	var (
		verr *domain.ValidationError
		ierr *domain.InvocationError
	)
	switch {
	case errors.Is(err, domain.ErrAlreadyComplete):
		return http.StatusConflict
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ierr) && ierr.Code == domain.CodeEvaluatorTimeout:
		return http.StatusGatewayTimeout
	case errors.As(err, &ierr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) *ErrorBody {
	body := &ErrorBody{Error: err.Error()}
	var (
		verr *domain.ValidationError
		ierr *domain.InvocationError
	)
	switch {
	case errors.As(err, &verr):
		body.Code = string(verr.Code)
		body.ParameterID = verr.ParameterID
	case errors.As(err, &ierr):
		body.Code = string(ierr.Code)
	}
	return body
}

func isForm(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "application/x-www-form-urlencoded"
}

func decodeInput(w http.ResponseWriter, r *http.Request, form bool) (domain.RawInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var raw domain.RawInput
	if form {
		if err := r.ParseForm(); err != nil {
			return raw, err
		}
		raw = domain.RawInput{
			Selection: r.PostForm.Get("selection"),
			From:      r.PostForm.Get("from_value"),
			To:        r.PostForm.Get("to_value"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return raw, fmt.Errorf("invalid request body: %w", err)
	}

	for _, field := range []*string{&raw.Selection, &raw.From, &raw.To} {
		clean, err := validator.SanitizeInput(*field)
		if err != nil {
			return raw, err
		}
		*field = clean
	}
	return raw, nil
}

func validSessionID(id string) bool {
	if id == "" || len(id) > 128 || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StreamManager fans session updates out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Broadcast delivers msg to every subscriber of sessionID. Slow clients
// whose buffer is full miss the message.
func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers for sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}
