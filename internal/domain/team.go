package domain

import "time"

// Member is one entry of a team roster
type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
	IsCaptain   bool   `json:"is_captain"`
}

// Team represents a registered team and its roster
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CaptainID string    `json:"captain_id"`
	Members   []Member  `json:"members"`
	Retired   bool      `json:"retired"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the roster invariants: at least one member and exactly one
// captain, who must match CaptainID.
func (t *Team) Validate() error {
	if t.Name == "" || len(t.Members) == 0 {
		return ErrInvalidRoster
	}
	captains := 0
	seen := make(map[string]bool, len(t.Members))
	for _, m := range t.Members {
		if m.UserID == "" || seen[m.UserID] {
			return ErrInvalidRoster
		}
		seen[m.UserID] = true
		if m.IsCaptain {
			captains++
			if m.UserID != t.CaptainID {
				return ErrInvalidRoster
			}
		}
	}
	if captains != 1 {
		return ErrInvalidRoster
	}
	return nil
}

// Member returns the roster entry for userID
func (t *Team) Member(userID string) (Member, bool) {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Clone returns a deep copy of the team
func (t Team) Clone() Team {
	t.Members = append([]Member(nil), t.Members...)
	return t
}

// RegisterTeamRequest represents a request to register a new team
type RegisterTeamRequest struct {
	Name               string `json:"name"`
	CaptainID          string `json:"captain_id"`
	CaptainDisplayName string `json:"captain_display_name"`
	CaptainRole        string `json:"captain_role,omitempty"`
}
