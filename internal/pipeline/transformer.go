// --- File: internal/pipeline/transformer.go ---
// Package pipeline connects the listener bridge's event stream to the masking engine.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/soraiyu/KyuubiMask/pkg/mask"
)

// EventKind distinguishes posted from removed callbacks.
type EventKind string

const (
	KindPosted  EventKind = "posted"
	KindRemoved EventKind = "removed"
)

// Envelope is the wire form published by the listener bridge.
// Unknown JSON fields (a bridge that forwards title or text by mistake) are
// dropped during decoding and never reach the engine.
type Envelope struct {
	Kind  EventKind              `json:"kind" validate:"required,oneof=posted removed"`
	Event mask.NotificationEvent `json:"event" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// EventTransformer is a dataflow Transformer that unmarshals and validates a
// raw message payload into an Envelope. Malformed payloads are skipped with an
// error so the StreamingService can Nack them toward the DLQ.
func EventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*Envelope, bool, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal event envelope from message %s: %w", msg.ID, err)
	}

	if err := validate.Struct(&env); err != nil {
		return nil, true, fmt.Errorf("invalid event envelope in message %s: %w", msg.ID, formatValidationErrors(err))
	}

	return &env, false, nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Namespace()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Namespace(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}
