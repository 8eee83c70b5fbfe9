// File: internal/server/handlers.go
package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/session"
	"github.com/xkilldash9x/wdatoms/internal/service"
)

// maxBodySize caps request bodies, which may carry whole documents.
const maxBodySize = 16 << 20

// Handlers serves the session API.
type Handlers struct {
	log      *zap.Logger
	sessions *service.Manager
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, sessions *service.Manager) *Handlers {
	return &Handlers{
		log:      logger.Named("handlers"),
		sessions: sessions,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/commands", h.HandleListCommands)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.HandleListSessions)
			r.Post("/", h.HandleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Delete("/", h.HandleDeleteSession)
				r.Post("/load", h.HandleLoad)
				r.Post("/execute", h.HandleExecute)
			})
		})
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) HandleListCommands(w http.ResponseWriter, r *http.Request) {
	names, err := h.sessions.Commands()
	if err != nil {
		h.log.Error("Failed to list commands.", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal error listing commands.")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"commands": names})
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": h.sessions.IDs()})
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		h.log.Error("Failed to create session.", zap.Error(err))
		h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"id": s.ID()})
}

func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	found, err := h.sessions.Close(id)
	if !found {
		h.respondWithError(w, http.StatusNotFound, "Session not found.")
		return
	}
	if err != nil {
		h.log.Warn("Session closed with error.", zap.String("session_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadRequest replaces a session's document. With HTML set the markup is
// loaded as if served from URL; otherwise URL is fetched.
type LoadRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html,omitempty"`
}

// HandleLoad answers with an envelope, so navigation failures look the same
// as command failures.
func (h *Handlers) HandleLoad(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req LoadRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" && req.HTML == "" {
		h.respondWithError(w, http.StatusBadRequest, "url or html is required.")
		return
	}

	cmd := schemas.Request{ID: middleware.GetReqID(r.Context())}
	if req.HTML != "" {
		address := req.URL
		if address == "" {
			address = "about:blank"
		}
		cmd.Command = session.CmdLoad
		cmd.Args = []schemas.Value{schemas.String(req.HTML), schemas.String(address)}
	} else {
		cmd.Command = session.CmdNavigate
		cmd.Args = []schemas.Value{schemas.String(req.URL)}
	}
	h.respondJSON(w, http.StatusOK, s.Handle(r.Context(), cmd))
}

// HandleExecute runs one command. The HTTP status is 200 whenever a command
// ran; the envelope's own status reports how it went.
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Failed to read request body.")
		return
	}
	req, err := schemas.ParseRequest(body)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = middleware.GetReqID(r.Context())
	}

	resp := s.Handle(r.Context(), req)
	h.log.Debug("Executed command.",
		zap.String("session_id", s.ID()),
		zap.String("command", req.Command),
		zap.Int("status", resp.Status))
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		h.respondWithError(w, http.StatusNotFound, "Session not found.")
	}
	return s, ok
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err == nil {
		err = json.Unmarshal(body, into)
	}
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// respondWithError sends a JSON error body.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]string{"error": message})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	payload, err := schemas.Marshal(data)
	if err != nil {
		h.log.Error("Failed to encode response.", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(payload)
}
