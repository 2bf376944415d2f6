package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/angelmondragon/pimsync/api/responses"
	"github.com/angelmondragon/pimsync/internal/syncqueue"
	akeneowebhook "github.com/angelmondragon/pimsync/internal/webhooks/akeneo"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/logger"
)

// EventLedger reserves and advances idempotency ledger entries.
type EventLedger interface {
	CheckAndReserve(ctx context.Context, eventID, resourceRef string) (bool, error)
	MarkQueued(ctx context.Context, eventID, jobID string) error
}

// JobEnqueuer pushes sync jobs onto the durable queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *syncqueue.SyncJob) error
}

// secretSource hands out the configured webhook signing secret.
type secretSource interface {
	WebhookSecret() string
}

// SecretFunc adapts a plain function to secretSource.
type SecretFunc func() string

// WebhookSecret returns the secret.
func (f SecretFunc) WebhookSecret() string { return f() }

// AkeneoWebhook ingests PIM product events. Everything past the ledger
// reservation is asynchronous; the handler never talks to the Akeneo API or
// the catalog tables.
func AkeneoWebhook(ledger EventLedger, queue JobEnqueuer, secret secretSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if ledger == nil || queue == nil || secret == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		ok, err := akeneowebhook.VerifySignature(payload, r.Header.Get(akeneowebhook.SignatureHeader), secret.WebhookSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := akeneowebhook.Normalize(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ctx = logg.WithEventID(ctx, event.EventID)
		ctx = logg.WithProductRef(ctx, event.ProductRef)

		alreadyProcessed, err := ledger.CheckAndReserve(ctx, event.EventID, event.ProductRef)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if alreadyProcessed {
			logg.Info(ctx, "duplicate webhook delivery acknowledged")
			responses.WriteSuccess(w, map[string]string{"status": "already processed"})
			return
		}

		job := syncqueue.NewJob(event)
		if err := queue.Enqueue(ctx, job); err != nil {
			// The ledger row stays at RECEIVED; the reconciliation sweep
			// re-enqueues it later, and the sender retries on the 503.
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := ledger.MarkQueued(ctx, event.EventID, job.ID); err != nil {
			// Best effort: the job is already on the queue, and the sweep
			// tolerates a stale RECEIVED row with a live job.
			logg.Warn(ctx, "marking ledger entry queued failed: "+err.Error())
		}

		logg.Info(ctx, fmt.Sprintf("webhook event accepted, job %s queued", job.ID))
		responses.WriteSuccess(w, map[string]string{"status": "accepted", "job_id": job.ID})
	}
}
