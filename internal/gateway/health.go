// ABOUTME: Liveness and readiness endpoints for the gateway
// ABOUTME: Readiness performs a storage round trip before reporting ready

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/coven-botkit/internal/storage"
)

const readinessKey = "health/ready"

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if storage accepts a write and read.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := g.probeStorage(ctx); err != nil {
		g.logger.Warn("readiness probe failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (g *Gateway) probeStorage(ctx context.Context) error {
	store := g.services.Storage
	item, err := storage.NewItem(map[string]int64{"checked_at": time.Now().Unix()}, storage.Wildcard())
	if err != nil {
		return err
	}
	if err := store.Write(ctx, map[string]storage.Item{readinessKey: item}); err != nil {
		return fmt.Errorf("writing probe: %w", err)
	}
	items, err := store.Read(ctx, []string{readinessKey})
	if err != nil {
		return fmt.Errorf("reading probe: %w", err)
	}
	if _, ok := items[readinessKey]; !ok {
		return fmt.Errorf("probe not found after write")
	}
	return nil
}
