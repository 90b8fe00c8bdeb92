package service

import (
	"context"
	"errors"

	"github.com/tier-ladder/internal/domain"
)

// Notifier receives challenge events after a transition has committed
type Notifier interface {
	Publish(ctx context.Context, event domain.ChallengeEvent) error
}

// LadderCache mirrors standings for fast ladder reads
type LadderCache interface {
	UpsertStandings(ctx context.Context, tournamentID string, standings ...domain.Standing) error
}

// Notifiers fans an event out to several notifiers
type Notifiers []Notifier

// Publish delivers the event to every notifier and joins their errors
func (n Notifiers) Publish(ctx context.Context, event domain.ChallengeEvent) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
