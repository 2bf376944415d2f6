package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pimsync/api/responses"
	"github.com/angelmondragon/pimsync/internal/synchealth"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/logger"
)

// HealthChecker produces the sync pipeline health snapshot.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (*synchealth.HealthStatus, error)
}

// SyncHealth exposes the pipeline monitor. The snapshot is always served
// with a 200; the degraded/critical state lives in the body so dashboards
// can poll it without tripping HTTP-level alerting.
func SyncHealth(monitor HealthChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync health monitor unavailable"))
			return
		}
		status, err := monitor.CheckHealth(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
