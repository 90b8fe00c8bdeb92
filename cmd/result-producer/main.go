package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/kafka"
)

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "ladder-match-results", "Kafka topic")
	challengeID := flag.String("challenge", "", "Challenge ID")
	winnerID := flag.String("winner", "", "Winning standing ID")
	loserID := flag.String("loser", "", "Losing standing ID (needed with -games)")
	score := flag.String("score", "", "Score from the winner's side, e.g. 2-1")
	games := flag.String("games", "", "Comma-separated standing IDs of each game's winner, in order")
	flag.Parse()

	msg := kafka.ResultMessage{
		ChallengeID: *challengeID,
		WinnerID:    *winnerID,
		Score:       *score,
	}
	if *games != "" {
		parsed, err := parseGames(*games, *winnerID, *loserID)
		if err != nil {
			log.Fatalf("Invalid -games: %v", err)
		}
		msg.Games = parsed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Fatalf("Failed to marshal message: %v", err)
	}
	// same checks the consumer applies
	if _, err := kafka.DecodeResult(data); err != nil {
		log.Fatalf("Invalid result: %v", err)
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: *topic,
		Key:   sarama.StringEncoder(msg.ChallengeID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		log.Fatalf("Failed to send result: %v", err)
	}

	fmt.Printf("Sent result for challenge %s to %s (partition %d, offset %d)\n", msg.ChallengeID, *topic, partition, offset)
}

// parseGames expands a list of per-game winners into game results
func parseGames(list, winnerID, loserID string) ([]domain.GameResult, error) {
	if loserID == "" {
		return nil, fmt.Errorf("-loser is required")
	}
	var out []domain.GameResult
	for i, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		game := domain.GameResult{Number: i + 1, WinnerID: id}
		switch id {
		case winnerID:
			game.LoserID = loserID
		case loserID:
			game.LoserID = winnerID
		default:
			return nil, fmt.Errorf("game %d winner %q is neither -winner nor -loser", i+1, id)
		}
		out = append(out, game)
	}
	return out, nil
}
