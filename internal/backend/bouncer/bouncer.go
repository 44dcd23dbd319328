// Package bouncer is the DeliveryBackend that relays pushes through an
// intermediary "bouncer" service when the origin server cannot reach the
// platform APIs directly.
package bouncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

const notifyPath = "/api/v1/remotes/push/notify"

type Backend struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Backend {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Backend{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With("component", "BouncerBackend"),
	}
}

// notifyRequest is the wire format of the relay call: both payloads, both
// device lists, and the stable identities the bouncer keys its own registry
// on. One POST covers the whole batch, so the attempt is atomic.
type notifyRequest struct {
	UserID         int64                `json:"user_id"`
	UserUUID       string               `json:"user_uuid"`
	RealmID        int64                `json:"realm_id"`
	RealmUUID      string               `json:"realm_uuid"`
	ApplePayload   dispatch.PushPayload `json:"apple_payload"`
	AndroidPayload dispatch.PushPayload `json:"android_payload"`
	AppleDevices   []string             `json:"apple_devices"`
	AndroidDevices []string             `json:"android_devices"`
}

type notifyResponse struct {
	TotalAppleDevices   int `json:"total_apple_devices"`
	TotalAndroidDevices int `json:"total_android_devices"`
	DeletedDevices      struct {
		AppleTokens   []string `json:"apple_tokens"`
		AndroidTokens []string `json:"android_tokens"`
	} `json:"deleted_devices"`
}

// SendPush relays one atomic notify request. A connection-level failure is
// surfaced as retry-later: nothing was delivered and the caller's queue
// should redeliver. An HTTP error status from the bouncer is terminal.
func (b *Backend) SendPush(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	return b.notify(ctx, req)
}

// RemovePush relays the "clear" payloads through the same endpoint; the
// bouncer forwards them as background/data pushes.
func (b *Backend) RemovePush(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	return b.notify(ctx, req)
}

func (b *Backend) notify(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	wire := notifyRequest{
		UserID:         req.User.ID,
		UserUUID:       req.User.UUID.String(),
		RealmID:        req.Realm.ID,
		RealmUUID:      req.Realm.UUID.String(),
		ApplePayload:   req.ApplePayload,
		AndroidPayload: req.AndroidPayload,
		AppleDevices:   tokensOf(req.AppleDevices),
		AndroidDevices: tokensOf(req.AndroidDevices),
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal notify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+notifyPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build notify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		// The bouncer never saw the batch; the queue owns the retry.
		return nil, dispatch.RetryLater(fmt.Errorf("bouncer unreachable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("bouncer rejected notify: status %d: %s", resp.StatusCode, snippet)
	}

	var wireResp notifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("decode notify response: %w", err)
	}

	receipt := &dispatch.PushReceipt{
		AppleDelivered:   wireResp.TotalAppleDevices,
		AndroidDelivered: wireResp.TotalAndroidDevices,
	}
	// Tokens the relay already purged from its own registry; mirror the
	// deletions locally.
	for _, t := range wireResp.DeletedDevices.AppleTokens {
		receipt.InvalidTokens = append(receipt.InvalidTokens, dispatch.InvalidToken{Platform: dispatch.PlatformApple, Token: t})
	}
	for _, t := range wireResp.DeletedDevices.AndroidTokens {
		receipt.InvalidTokens = append(receipt.InvalidTokens, dispatch.InvalidToken{Platform: dispatch.PlatformAndroid, Token: t})
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
