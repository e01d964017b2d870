package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gridwatch/internal/query"
)

// streamEvents relays record changes on one collection as server-sent
// events, dropping those outside the subscriber's scope.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, schema query.Schema) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	scope, err := s.writeScope(r.Context(), p, schema)
	if err != nil {
		writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(schema.Collection)
	defer s.Broker.Unsubscribe(schema.Collection, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"collection\":%q,\"ts\":%q}\n\n", schema.Path, s.now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !scope.Allows(evt.Data) {
				continue
			}
			b, err := json.Marshal(evt.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}
