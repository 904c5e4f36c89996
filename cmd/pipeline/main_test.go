package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketviz/pkg/contracts/domain"
)

func TestResolveRangeDefaults(t *testing.T) {
	start, end, err := resolveRange("", "")
	require.NoError(t, err)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	assert.Equal(t, today, end)
	assert.Equal(t, today.AddDate(0, -12, 0), start)
}

func TestResolveRangeExplicit(t *testing.T) {
	start, end, err := resolveRange("2024-01-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), end)
}

func TestResolveRangeRejectsInverted(t *testing.T) {
	_, _, err := resolveRange("2024-03-31", "2024-01-01")
	assert.Error(t, err)
}

func TestResolveRangeRejectsMalformed(t *testing.T) {
	_, _, err := resolveRange("01/02/2024", "")
	assert.Error(t, err)

	_, _, err = resolveRange("", "yesterday")
	assert.Error(t, err)
}

func TestFilterUniverse(t *testing.T) {
	universe := []domain.Symbol{
		{Ticker: "AAA"},
		{Ticker: "BBB"},
		{Ticker: "CCC"},
	}

	filtered := filterUniverse(universe, "aaa, CCC")
	require.Len(t, filtered, 2)
	assert.Equal(t, "AAA", filtered[0].Ticker)
	assert.Equal(t, "CCC", filtered[1].Ticker)

	assert.Empty(t, filterUniverse(universe, "ZZZ"))
}
