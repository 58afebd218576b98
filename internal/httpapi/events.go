package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"draftflow/pkg/proto"
)

// handleEvents streams workflow events as server-sent events. An optional
// project_id query parameter narrows the stream to one project. The stream
// ends when the client disconnects or the bus shuts down.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Bus == nil {
			writeFail(w, http.StatusServiceUnavailable, proto.CodeInternal, "event bus not configured")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeFail(w, http.StatusInternalServerError, proto.CodeInternal, "streaming not supported")
			return
		}

		projectFilter := r.URL.Query().Get("project_id")

		sub := s.deps.Bus.Subscribe()
		defer sub.Unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case event, open := <-sub.C():
				if !open {
					return
				}
				if projectFilter != "" && event.ProjectID != projectFilter {
					continue
				}
				payload, err := json.Marshal(event)
				if err != nil {
					s.logger.Warn("failed to encode event: %v", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
				flusher.Flush()
			}
		}
	}
}
