package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"moviesite/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleListIntents(w http.ResponseWriter, r *http.Request) {
	status := models.IntentStatus(r.URL.Query().Get("status"))
	s.listIntents(w, r, status)
}

func (s *HTTPServer) handleFailedIntents(w http.ResponseWriter, r *http.Request) {
	s.listIntents(w, r, models.IntentFailed)
}

func (s *HTTPServer) listIntents(w http.ResponseWriter, r *http.Request, status models.IntentStatus) {
	intents, err := s.deps.Queue.List(r.Context(), status, queryInt(r, "limit"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, intents)
}

func (s *HTTPServer) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Queue.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.deps.Queue.DeadLetters(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, letters)
}

func (s *HTTPServer) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid intent id")
		return
	}

	intent, err := s.deps.Queue.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, intent)
}

func (s *HTTPServer) handleRequeueIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid intent id")
		return
	}

	intent, err := s.deps.Queue.Requeue(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "intent requeued", Data: intent, IntentID: intent.ID})
}

func (s *HTTPServer) handleExportQueue(w http.ResponseWriter, r *http.Request) {
	status := models.IntentStatus(r.URL.Query().Get("status"))

	// build in memory so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := s.deps.Queue.Export(r.Context(), &buf, status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("queue_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
