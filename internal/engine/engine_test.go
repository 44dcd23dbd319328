package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/tinywideclouds/go-push-dispatch-service/internal/engine"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Typed Mocks ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) SendPush(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.PushReceipt), args.Error(1)
}

func (m *mockBackend) RemovePush(ctx context.Context, req *dispatch.PushRequest) (*dispatch.PushReceipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.PushReceipt), args.Error(1)
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Targets(ctx context.Context, realm, user int64) ([]dispatch.DeliveryTarget, error) {
	args := m.Called(ctx, realm, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dispatch.DeliveryTarget), args.Error(1)
}

func (m *mockRegistry) Register(ctx context.Context, realm, user int64, target dispatch.DeliveryTarget) error {
	return m.Called(ctx, realm, user, target).Error(0)
}

func (m *mockRegistry) Unregister(ctx context.Context, realm, user int64, platform dispatch.Platform, token string) error {
	return m.Called(ctx, realm, user, platform, token).Error(0)
}

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) MarkActive(ctx context.Context, realm, user, messageID int64) error {
	return m.Called(ctx, realm, user, messageID).Error(0)
}

func (m *mockStateStore) Clear(ctx context.Context, realm, user, messageID int64) error {
	return m.Called(ctx, realm, user, messageID).Error(0)
}

func (m *mockStateStore) Active(ctx context.Context, realm, user, messageID int64) (bool, error) {
	args := m.Called(ctx, realm, user, messageID)
	return args.Bool(0), args.Error(1)
}

type mockMessageStore struct {
	mock.Mock
}

func (m *mockMessageStore) Message(ctx context.Context, messageID int64) (*dispatch.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.Message), args.Error(1)
}

func (m *mockMessageStore) Flags(ctx context.Context, user, messageID int64) (*dispatch.MessageFlags, error) {
	args := m.Called(ctx, user, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.MessageFlags), args.Error(1)
}

func (m *mockMessageStore) VisibleMessages(ctx context.Context, user int64, messageIDs []int64) ([]*dispatch.Message, error) {
	args := m.Called(ctx, user, messageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dispatch.Message), args.Error(1)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Profile(ctx context.Context, user int64) (*dispatch.UserProfile, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.UserProfile), args.Error(1)
}

func (m *mockUserStore) TopicParticipant(ctx context.Context, user, streamID int64, topic string) (bool, error) {
	args := m.Called(ctx, user, streamID, topic)
	return args.Bool(0), args.Error(1)
}

type mockReactivator struct {
	mock.Mock
}

func (m *mockReactivator) Reactivate(ctx context.Context, user int64) error {
	return m.Called(ctx, user).Error(0)
}

type mockCounterSink struct {
	mock.Mock
}

func (m *mockCounterSink) AddDelivered(ctx context.Context, realm int64, day time.Time, devices int) error {
	return m.Called(ctx, realm, day, devices).Error(0)
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, digest *dispatch.MissedMessageDigest) error {
	return m.Called(ctx, digest).Error(0)
}

// --- Harness ---

const (
	testUserID  = int64(42)
	testRealmID = int64(7)
)

type harness struct {
	backend     *mockBackend
	registry    *mockRegistry
	state       *mockStateStore
	messages    *mockMessageStore
	users       *mockUserStore
	reactivator *mockReactivator
	counters    *mockCounterSink
	renderer    *mockRenderer
	engine      *engine.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend:     new(mockBackend),
		registry:    new(mockRegistry),
		state:       new(mockStateStore),
		messages:    new(mockMessageStore),
		users:       new(mockUserStore),
		reactivator: new(mockReactivator),
		counters:    new(mockCounterSink),
		renderer:    new(mockRenderer),
	}
	h.engine = engine.New(
		engine.Config{MaxMentionGroupSize: 12},
		h.backend, h.registry, h.state, h.messages, h.users,
		h.reactivator, h.counters, h.renderer,
		newTestLogger(),
	)
	return h
}

func (h *harness) assertExpectations(t *testing.T) {
	t.Helper()
	h.backend.AssertExpectations(t)
	h.registry.AssertExpectations(t)
	h.state.AssertExpectations(t)
	h.messages.AssertExpectations(t)
	h.users.AssertExpectations(t)
	h.reactivator.AssertExpectations(t)
	h.counters.AssertExpectations(t)
	h.renderer.AssertExpectations(t)
}

func testProfile(idle bool) *dispatch.UserProfile {
	return &dispatch.UserProfile{
		Identity:     dispatch.UserIdentity{ID: testUserID, UUID: uuid.MustParse("11111111-1111-1111-1111-111111111111")},
		Realm:        dispatch.RealmIdentity{ID: testRealmID, UUID: uuid.MustParse("22222222-2222-2222-2222-222222222222")},
		LongTermIdle: idle,
	}
}

func testTargets() []dispatch.DeliveryTarget {
	return []dispatch.DeliveryTarget{
		{Token: "apns-token-1", Platform: dispatch.PlatformApple, AppID: "org.example.app"},
		{Token: "fcm-token-1", Platform: dispatch.PlatformAndroid},
	}
}

func streamMessage(id int64) *dispatch.Message {
	return &dispatch.Message{
		ID:         id,
		SenderID:   99,
		SenderName: "Alice",
		Kind:       dispatch.RecipientStream,
		StreamID:   5,
		StreamName: "engineering",
		Topic:      "launch plan",
		Content:    "we should ship on Tuesday",
		SentAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func unread() *dispatch.MessageFlags {
	return &dispatch.MessageFlags{Read: false}
}
