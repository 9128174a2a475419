package main

import (
	"context"
	"net/http"
	"time"
)

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, store := 200, "ok"
	if err := a.store.Ping(ctx); err != nil {
		a.log.Warn("health ping", "err", err)
		status, store = 503, "unavailable"
	}
	writeJSON(w, status, map[string]any{"ok": status == 200, "ts": time.Now().UTC().Format(time.RFC3339), "store": store})
}
