package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// stream pushes a snapshot of name as a server-sent event after every committed change,
// starting with the current state. It ends when the client goes away or snapshot fails.
func (rt *Router) stream(w http.ResponseWriter, r *http.Request, name string, snapshot func(context.Context) (any, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	changes, cancel := rt.store.Subscribe(name)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	seq := 0
	send := func() bool {
		v, err := snapshot(ctx)
		if err != nil {
			b, _ := json.Marshal(errorBody{Error: err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", b)
			flusher.Flush()
			return false
		}
		b, err := json.Marshal(v)
		if err != nil {
			rt.log.Error("api", "encode snapshot", map[string]any{"error": err, "experiment": name})
			return false
		}
		seq++
		fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", seq, b)
		flusher.Flush()
		return true
	}
	if !send() {
		return
	}

	heartbeat := time.NewTicker(rt.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if !send() {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
