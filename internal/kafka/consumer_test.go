package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
)

type fakeResultHandler struct {
	errs  []error
	calls []domain.SubmitResultRequest
}

func (f *fakeResultHandler) SubmitResult(_ context.Context, challengeID string, req domain.SubmitResultRequest) (*domain.Challenge, error) {
	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.Challenge{ID: challengeID, Status: domain.StatusCompleted}, nil
}

func newTestConsumer(handler ResultHandler) *Consumer {
	return &Consumer{
		config:  &config.KafkaConfig{RetryAttempts: 3, RetryDelay: time.Millisecond},
		handler: handler,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDecodeResult(t *testing.T) {
	msg, err := DecodeResult([]byte(`{"challenge_id":"c1","winner_id":"s1","score":"2-1","games":[{"number":1,"winner_id":"s1","loser_id":"s2"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", msg.ChallengeID)
	req := msg.Request()
	assert.Equal(t, "s1", req.WinnerID)
	assert.Equal(t, "2-1", req.Score)
	assert.Len(t, req.Games, 1)

	_, err = DecodeResult([]byte(`{"challenge_id":"c1"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = DecodeResult([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandleMessage_RetriesTransientFailures(t *testing.T) {
	transient := domain.Transient("submitting result", errors.New("connection reset"))
	handler := &fakeResultHandler{errs: []error{transient, transient, nil}}
	c := newTestConsumer(handler)

	err := c.handleMessage(context.Background(), []byte(`{"challenge_id":"c1","winner_id":"s1","score":"2-0"}`))
	require.NoError(t, err)
	assert.Len(t, handler.calls, 3)
}

func TestHandleMessage_GivesUpAfterRetryAttempts(t *testing.T) {
	transient := domain.Transient("submitting result", errors.New("connection reset"))
	handler := &fakeResultHandler{errs: []error{transient, transient, transient, transient}}
	c := newTestConsumer(handler)

	err := c.handleMessage(context.Background(), []byte(`{"challenge_id":"c1","winner_id":"s1","score":"2-0"}`))
	assert.True(t, domain.IsTransient(err))
	assert.Len(t, handler.calls, 3)
}

func TestHandleMessage_RejectionIsFinal(t *testing.T) {
	handler := &fakeResultHandler{errs: []error{domain.RejectChallenge(domain.ReasonChallengeAlreadyTerminal, "c1")}}
	c := newTestConsumer(handler)

	err := c.handleMessage(context.Background(), []byte(`{"challenge_id":"c1","winner_id":"s1","score":"2-0"}`))
	assert.True(t, domain.IsRejection(err, domain.ReasonChallengeAlreadyTerminal))
	assert.Len(t, handler.calls, 1)
}
