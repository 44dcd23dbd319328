// Internal test: exercises the dispatcher through newTestDispatcher.
package apns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func TestDispatch_Internal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	payload := dispatch.PushPayload{
		Event:      "message",
		Title:      "Alice",
		Body:       "hello",
		MessageIDs: []int64{100},
		Data:       map[string]string{"realm_id": "7"},
	}

	t.Run("Happy Path - Success", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

		mockResponse := &apns2.Response{StatusCode: http.StatusOK}
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-1" && n.Topic == "com.test.app"
		})).Return(mockResponse, nil)

		delivered, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, payload)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Equal(t, 1, delivered)
		mockClient.AssertExpectations(t)
	})

	t.Run("Self-Healing - Bad Device Token", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

		mockResponse := &apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}
		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(mockResponse, nil)

		delivered, invalid, err := dispatcher.Dispatch(ctx, []string{"bad-token"}, payload)

		require.NoError(t, err)
		assert.Zero(t, delivered)
		require.Len(t, invalid, 1)
		assert.Equal(t, "bad-token", invalid[0])
	})

	t.Run("Unregistered And Wrong-Topic Tokens Are Dead Too", func(t *testing.T) {
		for _, reason := range []string{apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic} {
			mockClient := new(MockAPNSClient)
			dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

			mockClient.On("PushWithContext", mock.Anything, mock.Anything).
				Return(&apns2.Response{StatusCode: http.StatusGone, Reason: reason}, nil)

			_, invalid, err := dispatcher.Dispatch(ctx, []string{"dead-token"}, payload)
			require.NoError(t, err)
			assert.Len(t, invalid, 1, "reason %s should invalidate the token", reason)
		}
	})

	t.Run("Config Rejection Keeps The Token", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

		mockResponse := &apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonTopicDisallowed,
		}
		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(mockResponse, nil)

		delivered, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, payload)

		require.NoError(t, err)
		assert.Zero(t, delivered)
		assert.Empty(t, invalid)
	})

	t.Run("Transport Failure - Best Effort", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused"))

		// Transport errors are per-device: log, count, continue.
		delivered, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1"}, payload)

		require.NoError(t, err)
		assert.Zero(t, delivered)
		assert.Empty(t, invalid)
	})

	t.Run("Remove Event Is A Background Push", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

		badge := 0
		removal := dispatch.PushPayload{
			Event:      "remove",
			Badge:      &badge,
			MessageIDs: []int64{100},
		}

		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.PushType == apns2.PushTypeBackground && n.Priority == apns2.PriorityLow
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)

		delivered, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, removal)

		require.NoError(t, err)
		assert.Equal(t, 1, delivered)
		mockClient.AssertExpectations(t)
	})

	t.Run("Mixed Batch", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := newTestDispatcher(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "good-token"
		})).Return(&apns2.Response{StatusCode: http.StatusOK}, nil)
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "dead-token"
		})).Return(&apns2.Response{StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered}, nil)

		delivered, invalid, err := dispatcher.Dispatch(ctx, []string{"good-token", "dead-token"}, payload)

		require.NoError(t, err)
		assert.Equal(t, 1, delivered)
		assert.Equal(t, []string{"dead-token"}, invalid)
	})
}
