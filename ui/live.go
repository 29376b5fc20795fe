package ui

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"gosplit/models"
)

// liveWriteWait bounds each websocket write.
const liveWriteWait = 10 * time.Second

// handleLiveReport streams the experiment's report over a websocket, one JSON
// message immediately and then one per push interval. Each push runs the full
// build plus auto-transition but never archives a snapshot; the loop ends on
// client disconnect, context cancel, or a failed build.
func (a *App) handleLiveReport(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := a.lifecycle.Get(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	// Drain client frames so a peer close surfaces promptly.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	ticker := time.NewTicker(a.cfg.Realtime.PushInterval)
	defer ticker.Stop()

	for {
		report, err := a.reports.BuildAndTransition(ctx, id)
		if err != nil {
			log.Warn().
				Err(err).
				Str("experiment_id", id.String()).
				Msg("live report build failed")
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(models.NewReport(report)); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-disconnected:
			return
		case <-ticker.C:
		}
	}
}
