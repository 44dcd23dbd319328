// Package fcm delivers Android pushes directly through Firebase Cloud
// Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

// NewDispatcher accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends the payload to a batch of Android tokens. It returns the
// number of devices that accepted the push and the tokens FCM reported as
// permanently dead. Transport failures cover the whole batch and are
// returned as an error; per-device transient failures are logged and the
// token kept.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, payload dispatch.PushPayload) (int, []string, error) {
	if len(tokens) == 0 {
		return 0, nil, nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   fcmData(payload),
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if payload.Event != "remove" {
		msg.Notification = &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		}
	}

	br, err := d.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		// A validation rejection covers the payload, not the tokens.
		// Dropping the batch is the only safe response.
		if messaging.IsInvalidArgument(err) {
			d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "err", err)
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	var invalidTokens []string
	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, tokens[idx])
				continue
			}
			// Transient per-device failure; keep the token for next time.
			d.logger.Warn("FCM delivery failed for device", "err", resp.Error)
		}
	}

	return br.SuccessCount, invalidTokens, nil
}

// fcmData flattens the structured payload into the string-only data block
// FCM requires. The ids travel as a comma-joined list.
func fcmData(payload dispatch.PushPayload) map[string]string {
	data := make(map[string]string, len(payload.Data)+2)
	for k, v := range payload.Data {
		data[k] = v
	}
	ids := make([]string, len(payload.MessageIDs))
	for i, id := range payload.MessageIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	data["message_ids"] = strings.Join(ids, ",")
	if payload.Badge != nil {
		data["badge"] = strconv.Itoa(*payload.Badge)
	}
	return data
}
