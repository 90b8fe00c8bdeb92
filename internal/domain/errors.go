package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrStandingNotFound   = errors.New("standing not found")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrDuplicateSlug      = errors.New("team name already taken")
	ErrAlreadyJoined      = errors.New("team already joined tournament")
	ErrInvalidRoster      = errors.New("invalid team roster")
	ErrInvalidTournament  = errors.New("invalid tournament configuration")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
	ErrUnavailable        = errors.New("service temporarily unavailable")
)

// Reason is the closed set of business-rule rejections
type Reason string

const (
	ReasonTournamentNotFound            Reason = "tournament_not_found"
	ReasonStandingNotFound              Reason = "standing_not_found"
	ReasonInvalidTierRelationship       Reason = "invalid_tier_relationship"
	ReasonDefenderProtected             Reason = "defender_protected"
	ReasonDuplicateChallenge            Reason = "duplicate_challenge"
	ReasonMonthlyLimitExceeded          Reason = "monthly_limit_exceeded"
	ReasonInvalidStatusForOperation     Reason = "invalid_status_for_operation"
	ReasonInsufficientDateOptions       Reason = "insufficient_date_options"
	ReasonDateNotInFuture               Reason = "date_not_in_future"
	ReasonScheduledDateNotAmongProposed Reason = "scheduled_date_not_among_proposed"
	ReasonScoreFormatInvalid            Reason = "score_format_invalid"
	ReasonChallengeAlreadyTerminal      Reason = "challenge_already_terminal"

	ReasonChallengeNotFound       Reason = "challenge_not_found"
	ReasonTeamNotFound            Reason = "team_not_found"
	ReasonTournamentNotActive     Reason = "tournament_not_active"
	ReasonSelfChallenge           Reason = "self_challenge"
	ReasonNotParticipant          Reason = "not_participant"
	ReasonMatchNotYetPlayed       Reason = "match_not_yet_played"
	ReasonNotCaptain              Reason = "not_captain"
	ReasonInvalidRoster           Reason = "invalid_roster"
	ReasonInvalidTournament       Reason = "invalid_tournament"
	ReasonTournamentLocked        Reason = "tournament_locked"
	ReasonTierFull                Reason = "tier_full"
	ReasonAlreadyJoined           Reason = "already_joined"
	ReasonDuplicateTeamName       Reason = "duplicate_team_name"
	ReasonInvalidStatusTransition Reason = "invalid_status_transition"
)

// RejectionError is returned when an operation violates a business rule.
// ChallengeID carries the related challenge where one exists, e.g. the
// already-open challenge on ReasonDuplicateChallenge.
type RejectionError struct {
	Reason      Reason
	ChallengeID string
	Detail      string
}

func (e *RejectionError) Error() string {
	msg := "rejected: " + string(e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.ChallengeID != "" {
		msg += " (challenge " + e.ChallengeID + ")"
	}
	return msg
}

// Reject builds a RejectionError
func Reject(reason Reason, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RejectChallenge builds a RejectionError that references a challenge
func RejectChallenge(reason Reason, challengeID string) *RejectionError {
	return &RejectionError{Reason: reason, ChallengeID: challengeID}
}

// AsRejection extracts a RejectionError from err
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsRejection reports whether err carries the given reason
func IsRejection(err error, reason Reason) bool {
	rej, ok := AsRejection(err)
	return ok && rej.Reason == reason
}

// TransientError wraps an infrastructure failure that callers may retry
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrUnavailable) match any transient failure
func (e *TransientError) Is(target error) bool {
	return target == ErrUnavailable
}

// Transient wraps err as a TransientError unless it is nil or already a
// rejection or transient failure
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsRejection(err); ok {
		return err
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is a retryable infrastructure failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	if errors.Is(err, ErrTeamNotFound) || errors.Is(err, ErrTournamentNotFound) ||
		errors.Is(err, ErrStandingNotFound) || errors.Is(err, ErrChallengeNotFound) {
		return true
	}
	rej, ok := AsRejection(err)
	if !ok {
		return false
	}
	switch rej.Reason {
	case ReasonTournamentNotFound, ReasonStandingNotFound, ReasonChallengeNotFound, ReasonTeamNotFound:
		return true
	}
	return false
}
