package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/tier-ladder/internal/domain"
)

// ResultMessage is a played match result reported onto the results topic
type ResultMessage struct {
	ChallengeID string              `json:"challenge_id"`
	WinnerID    string              `json:"winner_id"`
	Score       string              `json:"score"`
	Games       []domain.GameResult `json:"games,omitempty"`
}

// DecodeResult parses and checks a result message
func DecodeResult(data []byte) (ResultMessage, error) {
	var msg ResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ResultMessage{}, fmt.Errorf("decoding result message: %w", err)
	}
	if msg.ChallengeID == "" || msg.WinnerID == "" || msg.Score == "" {
		return ResultMessage{}, fmt.Errorf("result message needs challenge_id, winner_id and score: %w", domain.ErrInvalidRequest)
	}
	return msg, nil
}

// Request converts the message into an engine request
func (m ResultMessage) Request() domain.SubmitResultRequest {
	return domain.SubmitResultRequest{
		WinnerID: m.WinnerID,
		Score:    m.Score,
		Games:    m.Games,
	}
}
