//go:build unit

package delivery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMedia(ctx context.Context, destination, mediaURL, caption string) error {
	args := m.Called(ctx, destination, mediaURL, caption)
	return args.Error(0)
}

func (m *mockSender) SendText(ctx context.Context, destination, text string) error {
	args := m.Called(ctx, destination, text)
	return args.Error(0)
}

func succeededJob(result string) *readmodel.JobRM {
	return &readmodel.JobRM{
		ID:            uuid.New(),
		Destination:   "channel-42",
		State:         "succeeded",
		ResultPayload: json.RawMessage(result),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestCoordinator_Deliver(t *testing.T) {
	t.Run("sends media on the primary path", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("SendMedia", mock.Anything, "channel-42", "https://cdn.example/a.png", "a cat").
			Return(nil)

		outcome, err := NewCoordinator(sender).Deliver(context.Background(),
			succeededJob(`{"url":"https://cdn.example/a.png","caption":"a cat"}`))

		require.NoError(t, err)
		assert.Equal(t, OutcomeMedia, outcome)
		sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to a link when media fails", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("SendMedia", mock.Anything, "channel-42", "https://cdn.example/a.png", "").
			Return(errs.New("media too large"))
		sender.On("SendText", mock.Anything, "channel-42", "https://cdn.example/a.png").
			Return(nil)

		outcome, err := NewCoordinator(sender).Deliver(context.Background(),
			succeededJob(`{"url":"https://cdn.example/a.png"}`))

		require.NoError(t, err)
		assert.Equal(t, OutcomeLink, outcome)
		sender.AssertExpectations(t)
	})

	t.Run("reports failure when both paths fail", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errs.New("down"))
		sender.On("SendText", mock.Anything, mock.Anything, mock.Anything).
			Return(errs.New("still down"))

		_, err := NewCoordinator(sender).Deliver(context.Background(),
			succeededJob(`{"url":"https://cdn.example/a.png"}`))

		require.Error(t, err)
	})

	t.Run("rejects results without an artifact url", func(t *testing.T) {
		sender := new(mockSender)

		_, err := NewCoordinator(sender).Deliver(context.Background(), succeededJob(`{}`))

		require.Error(t, err)
		assert.True(t, errs.Is(err, ErrNoArtifact))
		sender.AssertNotCalled(t, "SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("treats an undecodable result as missing artifact", func(t *testing.T) {
		sender := new(mockSender)

		_, err := NewCoordinator(sender).Deliver(context.Background(), succeededJob(`not-json`))

		require.ErrorIs(t, err, ErrNoArtifact)
		sender.AssertNotCalled(t, "SendMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
