package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"

	"github.com/tier-ladder/internal/domain"
)

func TestEventProducer_Publish(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event domain.ChallengeEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != domain.EventChallengeCompleted || event.Challenge.ID != "c1" {
			return errors.New("unexpected event payload")
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewEventProducerWith(mock, "ladder-challenge-events", slog.New(slog.NewTextHandler(io.Discard, nil)))
	event := domain.ChallengeEvent{
		Type:         domain.EventChallengeCompleted,
		TournamentID: "t1",
		Challenge:    domain.Challenge{ID: "c1"},
	}

	assert.NoError(t, p.Publish(context.Background(), event))
	assert.ErrorIs(t, p.Publish(context.Background(), event), sarama.ErrOutOfBrokers)
	assert.NoError(t, p.Close())
}
