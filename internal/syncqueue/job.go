package syncqueue

import (
	"encoding/json"
	"time"

	akeneowebhook "github.com/angelmondragon/pimsync/internal/webhooks/akeneo"
	"github.com/google/uuid"
)

// JobMetadata carries the webhook provenance of a job so logs and the ledger
// can be correlated long after the original request is gone.
type JobMetadata struct {
	EventID          string `json:"event_id"`
	AuthorIdentifier string `json:"author_identifier,omitempty"`
	AuthorKind       string `json:"author_kind,omitempty"`
	EventTime        int64  `json:"event_time,omitempty"`
}

// SyncJob is the durable unit of work the worker claims. The struct is stored
// as JSON at its payload key; the lists only carry the job id.
type SyncJob struct {
	ID            string                      `json:"id"`
	Operation     akeneowebhook.Operation     `json:"operation"`
	ExternalRef   string                      `json:"external_ref"`
	AttemptCount  int                         `json:"attempt_count"`
	CreatedAt     int64                       `json:"created_at"`
	NextAttemptAt int64                       `json:"next_attempt_at,omitempty"`
	LastError     string                      `json:"last_error,omitempty"`
	Metadata      JobMetadata                 `json:"metadata"`
}

// NewJob builds a job for the given normalized event.
func NewJob(event *akeneowebhook.InboundEvent) *SyncJob {
	return &SyncJob{
		ID:          uuid.NewString(),
		Operation:   event.Operation,
		ExternalRef: event.ProductRef,
		CreatedAt:   time.Now().UnixMilli(),
		Metadata: JobMetadata{
			EventID:          event.EventID,
			AuthorIdentifier: event.AuthorIdentifier,
			AuthorKind:       event.AuthorKind,
			EventTime:        event.OccurredAt.UnixMilli(),
		},
	}
}

// Due reports whether the job may be attempted at the given instant.
func (j *SyncJob) Due(now time.Time) bool {
	return j.NextAttemptAt == 0 || now.UnixMilli() >= j.NextAttemptAt
}

func (j *SyncJob) encode() (string, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeJob(raw string) (*SyncJob, error) {
	var job SyncJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
