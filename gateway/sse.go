package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/masterplanhq/masterplan-server/domain"
)

type statusUpdate struct {
	Statuses map[string]domain.CanonicalStatus `json:"statuses"`
}

// statusStreamHandler is a long-lived SSE channel: an immediate snapshot,
// then a full snapshot on every poll tick where the serialized result
// changed, plus a periodic ping so intermediaries keep the connection open.
func (g *gateway) statusStreamHandler(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "StreamingUnsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	writeEvent(w, "connected", map[string]string{"project": slug})
	flusher.Flush()

	snapshot, err := g.status.GetStatuses(ctx, slug)
	if err != nil {
		return
	}
	last, _ := json.Marshal(snapshot.Statuses)
	writeEvent(w, "status_update", statusUpdate{Statuses: snapshot.Statuses})
	flusher.Flush()

	pollTicker := time.NewTicker(g.statusConf.PollInterval())
	defer pollTicker.Stop()
	pingTicker := time.NewTicker(g.statusConf.PingInterval())
	defer pingTicker.Stop()

	log.DebugCtx(ctx, "status stream opened", zap.String("project", slug))
	for {
		select {
		case <-ctx.Done():
			log.DebugCtx(ctx, "status stream closed", zap.String("project", slug))
			return
		case <-pollTicker.C:
			snapshot, err := g.status.GetStatuses(ctx, slug)
			if err != nil {
				continue
			}
			current, err := json.Marshal(snapshot.Statuses)
			if err != nil || bytes.Equal(current, last) {
				continue
			}
			last = current
			writeEvent(w, "status_update", statusUpdate{Statuses: snapshot.Statuses})
			flusher.Flush()
		case <-pingTicker.C:
			writeEvent(w, "ping", map[string]int64{"time": time.Now().Unix()})
			flusher.Flush()
		}
	}
}

// writeEvent emits one frame in the exact wire format viewers parse:
// an event line, a data line, a blank-line terminator.
func writeEvent(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
