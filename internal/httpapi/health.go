package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"qazna.org/authcore/internal/kv"
)

// Readiness probe timeouts.
const (
	dbProbeTimeout    = 2 * time.Second
	redisProbeTimeout = time.Second
)

var errDBNotConfigured = errors.New("database not configured")

// DBPinger is satisfied by the identity store.
type DBPinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

// ReadyProbe checks the dependencies the service needs to accept traffic. A
// nil DB counts as not ready; a nil Redis client counts as ready.
type ReadyProbe struct {
	DB    DBPinger
	Redis *redis.Client
}

// ReadyReport holds per-dependency results.
type ReadyReport struct {
	DB    error
	Redis error
}

// OK reports whether every check passed.
func (r ReadyReport) OK() bool { return r.DB == nil && r.Redis == nil }

// Checks runs every probe. Both probes run even when the first fails.
func (rp ReadyProbe) Checks(ctx context.Context) ReadyReport {
	var rep ReadyReport
	if rp.DB == nil {
		rep.DB = errDBNotConfigured
	} else {
		rep.DB = rp.DB.Ping(ctx, dbProbeTimeout)
	}
	if rp.Redis != nil {
		rep.Redis = kv.Ping(ctx, rp.Redis, redisProbeTimeout)
	}
	return rep
}

// Check returns the first failing dependency.
func (rp ReadyProbe) Check(ctx context.Context) error {
	rep := rp.Checks(ctx)
	if rep.DB != nil {
		return rep.DB
	}
	return rep.Redis
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func checkStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	rep := a.ready.Checks(r.Context())
	body := readyResponse{
		Status: "ok",
		Checks: map[string]string{"db": checkStatus(rep.DB), "redis": checkStatus(rep.Redis)},
	}
	if !rep.OK() {
		a.logger.WarnContext(r.Context(), "readiness check failed",
			"db_error", errString(rep.DB), "redis_error", errString(rep.Redis))
		body.Status = "error"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
