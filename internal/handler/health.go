package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/forgo/canvas/internal/model"
)

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Pinger is satisfied by the SurrealDB client and the pgx pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ready handles GET /ready, checking the store can be reached
func Ready(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			pd := model.NewInternalError("store unavailable")
			pd.Status = http.StatusServiceUnavailable
			pd.Title = "Service Unavailable"
			WriteError(w, pd)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
