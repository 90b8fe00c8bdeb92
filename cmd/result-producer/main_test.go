package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/domain"
)

func TestParseGames(t *testing.T) {
	games, err := parseGames("a, b,a", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []domain.GameResult{
		{Number: 1, WinnerID: "a", LoserID: "b"},
		{Number: 2, WinnerID: "b", LoserID: "a"},
		{Number: 3, WinnerID: "a", LoserID: "b"},
	}, games)
}

func TestParseGames_Rejects(t *testing.T) {
	_, err := parseGames("a,b", "a", "")
	assert.Error(t, err)

	_, err = parseGames("a,c", "a", "b")
	assert.ErrorContains(t, err, "game 2")
}
