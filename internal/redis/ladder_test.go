package redis

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tier-ladder/internal/domain"
)

func TestRankScore_OrdersByTierThenPrestige(t *testing.T) {
	standings := []domain.Standing{
		{ID: "tier2-low", Tier: 2, Prestige: 3},
		{ID: "tier1-low", Tier: 1, Prestige: -40},
		{ID: "tier2-high", Tier: 2, Prestige: 90},
		{ID: "tier1-high", Tier: 1, Prestige: 500},
	}
	sort.Slice(standings, func(i, j int) bool {
		return rankScore(standings[i]) < rankScore(standings[j])
	})

	var order []string
	for _, s := range standings {
		order = append(order, s.ID)
	}
	assert.Equal(t, []string{"tier1-high", "tier1-low", "tier2-high", "tier2-low"}, order)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ladder:t1:ranking", rankingKey("t1"))
	assert.Equal(t, "ladder:t1:standings", standingsKey("t1"))
}
