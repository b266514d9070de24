package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StreamInstances sends a course's instances as Server-Sent Events, one
// "snapshot" event carrying the full list per change
func (h *Handlers) StreamInstances(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	watch, err := h.catalog.WatchInstances(r.Context(), courseID)
	if err != nil {
		log.Printf("[API] Failed to watch instances of %s: %v", courseID, err)
		http.Error(w, msgStoreFailed, http.StatusBadGateway)
		return
	}
	defer watch.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case instances, ok := <-watch.Updates():
			if !ok {
				if err := watch.Err(); err != nil {
					log.Printf("[API] Instance stream for %s ended: %v", courseID, err)
					writeEvent(w, "error", map[string]string{"error": msgStoreFailed})
					flusher.Flush()
				}
				return
			}
			if err := writeEvent(w, "snapshot", instances); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
