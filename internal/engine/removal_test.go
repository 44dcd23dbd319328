package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

func TestDispatchRemoval_HappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.users.On("Profile", mock.Anything, testUserID).Return(testProfile(false), nil)
	h.registry.On("Targets", mock.Anything, testRealmID, testUserID).Return(testTargets(), nil)

	var sent *dispatch.PushRequest
	h.backend.On("RemovePush", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*dispatch.PushRequest) }).
		Return(&dispatch.PushReceipt{AppleDelivered: 1, AndroidDelivered: 1}, nil)
	h.counters.On("AddDelivered", mock.Anything, testRealmID, mock.Anything, 2).Return(nil)

	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(100)).Return(nil)
	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(200)).Return(nil)

	require.NoError(t, h.engine.DispatchRemoval(ctx, testUserID, []int64{100, 200}))
	h.assertExpectations(t)

	require.NotNil(t, sent)
	p := sent.AndroidPayload
	assert.Equal(t, "remove", p.Event)
	require.NotNil(t, p.Badge)
	assert.Equal(t, 0, *p.Badge)
	assert.Equal(t, []int64{100, 200}, p.MessageIDs)
	assert.Equal(t, "7", p.Data["realm_id"])
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", p.Data["realm_uuid"])
	assert.Equal(t, "42", p.Data["user_id"])
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", p.Data["user_uuid"])
	assert.Empty(t, p.Title)
	assert.Empty(t, p.Body)
	assert.Equal(t, sent.ApplePayload, sent.AndroidPayload)
}

func TestDispatchRemoval_NoDevicesStillClearsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.users.On("Profile", mock.Anything, testUserID).Return(testProfile(false), nil)
	h.registry.On("Targets", mock.Anything, testRealmID, testUserID).Return([]dispatch.DeliveryTarget{}, nil)
	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(100)).Return(nil)

	require.NoError(t, h.engine.DispatchRemoval(ctx, testUserID, []int64{100}))

	h.backend.AssertNotCalled(t, "RemovePush", mock.Anything, mock.Anything)
	h.state.AssertExpectations(t)
}

func TestDispatchRemoval_RetryLaterLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.users.On("Profile", mock.Anything, testUserID).Return(testProfile(false), nil)
	h.registry.On("Targets", mock.Anything, testRealmID, testUserID).Return(testTargets(), nil)
	h.backend.On("RemovePush", mock.Anything, mock.Anything).
		Return(nil, dispatch.RetryLater(errors.New("bouncer unreachable")))

	err := h.engine.DispatchRemoval(ctx, testUserID, []int64{100})

	require.Error(t, err)
	assert.True(t, dispatch.IsRetryLater(err))
	h.state.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchRemoval_TerminalDeliveryErrorStillClearsState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.users.On("Profile", mock.Anything, testUserID).Return(testProfile(false), nil)
	h.registry.On("Targets", mock.Anything, testRealmID, testUserID).Return(testTargets(), nil)
	h.backend.On("RemovePush", mock.Anything, mock.Anything).
		Return(nil, errors.New("payload rejected"))
	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(100)).Return(nil)

	require.NoError(t, h.engine.DispatchRemoval(ctx, testUserID, []int64{100}))
	h.state.AssertExpectations(t)
}

func TestDispatchRemoval_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.users.On("Profile", mock.Anything, testUserID).Return(testProfile(false), nil)
	h.registry.On("Targets", mock.Anything, testRealmID, testUserID).Return(testTargets(), nil)
	h.backend.On("RemovePush", mock.Anything, mock.Anything).
		Return(&dispatch.PushReceipt{AndroidDelivered: 1}, nil).Twice()
	h.counters.On("AddDelivered", mock.Anything, testRealmID, mock.Anything, 1).Return(nil)
	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(100)).Return(nil)

	require.NoError(t, h.engine.DispatchRemoval(ctx, testUserID, []int64{100}))
	require.NoError(t, h.engine.DispatchRemoval(ctx, testUserID, []int64{100}))

	// The second run repeats the clear; the store treats it as a no-op.
	h.state.AssertNumberOfCalls(t, "Clear", 2)
}

func TestDispatchRemoval_EmptyBatchIsANoOp(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.DispatchRemoval(context.Background(), testUserID, nil))
	h.users.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
}

func TestDispatchRemoval_ClearFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.users.On("Profile", mock.Anything, testUserID).Return(testProfile(false), nil)
	h.registry.On("Targets", mock.Anything, testRealmID, testUserID).Return([]dispatch.DeliveryTarget{}, nil)
	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(100)).Return(errors.New("store down"))
	h.state.On("Clear", mock.Anything, testRealmID, testUserID, int64(200)).Return(nil)

	err := h.engine.DispatchRemoval(ctx, testUserID, []int64{100, 200})

	// The failed id is reported, but the other id was still cleared.
	require.Error(t, err)
	h.state.AssertNumberOfCalls(t, "Clear", 2)
}
