package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"ticklake/internal/queue"
)

// QueueResponse lists this worker's tickers per queue document.
type QueueResponse struct {
	Worker string              `json:"worker"`
	Queues map[string][]string `json:"queues"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.serving.Load() {
		writeError(w, http.StatusServiceUnavailable, "paused")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	resp := QueueResponse{
		Worker: s.queue.Field(queue.Doing),
		Queues: make(map[string][]string, len(queue.Documents)),
	}
	for _, doc := range queue.Documents {
		tickers, err := s.queue.List(r.Context(), doc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Queues[string(doc)] = nonNil(tickers)
	}
	writeJSON(w, resp)
}

func (s *Server) handleQueueDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := queue.ParseDocument(r.PathValue("doc"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tickers, err := s.queue.List(r.Context(), doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, QueueResponse{
		Worker: s.queue.Field(queue.Doing),
		Queues: map[string][]string{string(doc): nonNil(tickers)},
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
