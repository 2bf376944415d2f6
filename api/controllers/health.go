package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pimsync/api/responses"
	"github.com/angelmondragon/pimsync/pkg/config"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/logger"
)

// Pinger verifies a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PimSync-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every named dependency answers a ping.
// The sync pipeline status is included informationally; a degraded pipeline
// does not fail readiness, only unreachable infrastructure does.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger, monitor HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PimSync-Env", cfg.App.Env)

		checks := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(r.Context()); err != nil {
				checks[name] = "unreachable"
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unreachable")
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			checks[name] = "ok"
		}

		if monitor != nil {
			if status, err := monitor.CheckHealth(r.Context()); err != nil {
				checks["sync"] = "unknown"
			} else {
				checks["sync"] = string(status.Status)
			}
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
