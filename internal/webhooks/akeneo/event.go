package akeneowebhook

import (
	"encoding/json"
	"time"
)

// Operation is the internal tag for the catalog mutation an event demands.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// eventTypeOperations maps the CloudEvents type strings Akeneo emits onto
// internal operations. Unlisted types are rejected during normalization.
var eventTypeOperations = map[string]Operation{
	"com.akeneo.pim.v1.product.created": OpCreate,
	"com.akeneo.pim.v1.product.updated": OpUpdate,
	"com.akeneo.pim.v1.product.deleted": OpDelete,
}

// InboundEvent is the normalized, validated form of a webhook delivery. It is
// never acted on before the raw body passed signature verification and the
// event id cleared the idempotency ledger.
type InboundEvent struct {
	EventID          string
	EventType        string
	Operation        Operation
	OccurredAt       time.Time
	ProductRef       string
	ProductUUID      string
	AuthorIdentifier string
	AuthorKind       string
}

// envelope mirrors the CloudEvents-shaped payload on the wire.
type envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject"`
	DataContentType string          `json:"datacontenttype"`
	DataSchema      string          `json:"dataschema"`
	Time            string          `json:"time"`
	Data            *envelopeData   `json:"data"`
}

type envelopeData struct {
	Product *envelopeProduct `json:"product"`
	Author  *envelopeAuthor  `json:"author"`
}

type envelopeProduct struct {
	UUID       string `json:"uuid"`
	Identifier string `json:"identifier"`
}

type envelopeAuthor struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

// raw JSON helpers kept close to the envelope so the normalizer stays small.
func parseEnvelope(payload []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
