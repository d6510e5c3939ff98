package ai

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBytes = 1 << 20

// NewRouter exposes the Service over HTTP. POST /ai takes a Request and
// replies with a Response.
func NewRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/ai", func(w http.ResponseWriter, req *http.Request) {
		var body Request
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes))
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if strings.TrimSpace(body.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt required")
			return
		}
		if body.SessionID == "" {
			body.SessionID = req.URL.Query().Get("session_id")
		}
		writeJSON(w, http.StatusOK, Response{Response: svc.Answer(req.Context(), body)})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
