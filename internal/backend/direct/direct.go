// Package direct is the DeliveryBackend that talks to the platform push
// services itself, one call per platform.
package direct

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// PlatformSender is the per-platform delivery contract satisfied by the fcm
// and apns dispatchers: deliver a payload to a token batch, return the
// accept count and the tokens reported permanently dead.
type PlatformSender interface {
	Dispatch(ctx context.Context, tokens []string, p dispatch.PushPayload) (int, []string, error)
}

type Backend struct {
	apple   PlatformSender
	android PlatformSender
	logger  *slog.Logger
}

func New(apple, android PlatformSender, logger *slog.Logger) *Backend {
	return &Backend{
		apple:   apple,
		android: android,
		logger:  logger.With("component", "DirectBackend"),
	}
}

// SendPush delivers to both platforms. A failure on one platform is logged
// and never blocks delivery to the other; direct-mode errors are all
// terminal for the attempt, so the receipt is the whole story.
func (b *Backend) SendPush(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	return b.deliver(ctx, req)
}

// RemovePush delivers the "clear" payloads through the same per-platform
// path.
func (b *Backend) RemovePush(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	return b.deliver(ctx, req)
}

func (b *Backend) deliver(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	receipt := &dispatch.PushReceipt{}

	if tokens := tokensOf(req.AndroidDevices); len(tokens) > 0 {
		delivered, invalid, err := b.android.Dispatch(ctx, tokens, req.AndroidPayload)
		receipt.AndroidDelivered = delivered
		appendInvalid(receipt, dispatch.PlatformAndroid, invalid)
		if err != nil {
			b.logger.Error("Android delivery failed", "user_id", req.User.ID, "err", err)
		}
	}

	if tokens := tokensOf(req.AppleDevices); len(tokens) > 0 {
		delivered, invalid, err := b.apple.Dispatch(ctx, tokens, req.ApplePayload)
		receipt.AppleDelivered = delivered
		appendInvalid(receipt, dispatch.PlatformApple, invalid)
		if err != nil {
			b.logger.Error("Apple delivery failed", "user_id", req.User.ID, "err", err)
		}
	}

	return receipt, nil
}

func tokensOf(targets []dispatch.DeliveryTarget) []string {
	tokens := make([]string, len(targets))
	for i, t := range targets {
		tokens[i] = t.Token
	}
	return tokens
}

func appendInvalid(receipt *dispatch.PushReceipt, platform dispatch.Platform, tokens []string) {
	for _, t := range tokens {
		receipt.InvalidTokens = append(receipt.InvalidTokens, dispatch.InvalidToken{
			Platform: platform,
			Token:    t,
		})
	}
}
