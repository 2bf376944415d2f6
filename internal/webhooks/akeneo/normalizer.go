package akeneowebhook

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
)

// Normalize parses and validates the raw webhook body into an InboundEvent.
// Each failure mode returns a distinct validation error naming the missing
// piece so the source system's payload drift is diagnosable from the 400
// response alone. Normalize has no side effects.
func Normalize(payload []byte) (*InboundEvent, error) {
	env, err := parseEnvelope(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}

	if env.Data == nil {
		return nil, validationError(env, "missing data payload")
	}
	if env.Data.Product == nil {
		return nil, validationError(env, "missing data.product reference")
	}
	if env.Data.Author == nil {
		return nil, validationError(env, "missing data.author reference")
	}

	operation, ok := eventTypeOperations[env.Type]
	if !ok {
		return nil, validationError(env, fmt.Sprintf("unsupported event type %q", env.Type))
	}

	productRef := strings.TrimSpace(env.Data.Product.Identifier)
	productUUID := strings.TrimSpace(env.Data.Product.UUID)
	if productRef == "" {
		// Deleted products often arrive without an identifier; the uuid is
		// the only remaining handle.
		productRef = productUUID
	}
	if productRef == "" {
		return nil, validationError(env, "missing product reference (identifier and uuid both absent)")
	}

	occurredAt := time.Now().UTC()
	if env.Time != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, env.Time); parseErr == nil {
			occurredAt = parsed
		}
	}

	return &InboundEvent{
		EventID:          env.ID,
		EventType:        env.Type,
		Operation:        operation,
		OccurredAt:       occurredAt,
		ProductRef:       productRef,
		ProductUUID:      productUUID,
		AuthorIdentifier: env.Data.Author.Identifier,
		AuthorKind:       env.Data.Author.Type,
	}, nil
}

func validationError(env *envelope, msg string) *pkgerrors.Error {
	err := pkgerrors.New(pkgerrors.CodeValidation, msg)
	details := map[string]any{}
	if env.ID != "" {
		details["event_id"] = env.ID
	}
	if env.Type != "" {
		details["event_type"] = env.Type
	}
	if len(details) > 0 {
		err = err.WithDetails(details)
	}
	return err
}
