// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// DispatchEventTransformer is a dataflow Transformer that safely unmarshals
// and validates a raw queue payload into a structured dispatch.DispatchEvent.
//
// A payload that cannot be parsed or validated is returned with skip=true so
// the StreamingService can handle the Nack/DLQ logic; redelivering it would
// fail forever.
func DispatchEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.DispatchEvent, bool, error) {
	var event dispatch.DispatchEvent

	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal dispatch event from message %s: %w", msg.ID, err)
	}

	if err := event.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid dispatch event in message %s: %w", msg.ID, err)
	}

	return &event, false, nil
}
