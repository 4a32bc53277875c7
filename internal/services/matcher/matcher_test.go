package matcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/odds-notifier/internal/lib/clock"
	"github.com/magabrotheeeer/odds-notifier/internal/models"
	"github.com/magabrotheeeer/odds-notifier/internal/storage/memory"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func match(id string, kickoff time.Time, home, away float64) models.Match {
	return models.Match{
		ID:       id,
		HomeTeam: "Home " + id,
		AwayTeam: "Away " + id,
		Kickoff:  kickoff,
		Odds:     models.Odds{Home: home, Away: away},
	}
}

func newMatcher(repo Repository) *Matcher {
	return New(repo, models.DefaultTargetRules(), clock.NewManual(now), newNoopLogger())
}

func TestMatcher_MatchesTarget(t *testing.T) {
	m := newMatcher(memory.New())

	tests := []struct {
		name string
		odds models.Odds
		want bool
	}{
		{name: "first rule exact", odds: models.Odds{Home: 4.25, Away: 1.225}, want: true},
		{name: "second rule exact", odds: models.Odds{Home: 4.22, Away: 1.225}, want: true},
		{name: "home rounds up to 4.25", odds: models.Odds{Home: 4.245, Away: 1.225}, want: true},
		{name: "home rounds down to 4.25", odds: models.Odds{Home: 4.2549, Away: 1.2254}, want: true},
		{name: "away rounds to 1.225", odds: models.Odds{Home: 4.25, Away: 1.2245}, want: true},
		{name: "home just below", odds: models.Odds{Home: 4.244, Away: 1.225}, want: false},
		{name: "away off by thousandth", odds: models.Odds{Home: 4.25, Away: 1.226}, want: false},
		{name: "swapped sides", odds: models.Odds{Home: 1.225, Away: 4.25}, want: false},
		{name: "between rules", odds: models.Odds{Home: 4.23, Away: 1.225}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchesTarget(tt.odds))
		})
	}
}

func TestMatcher_FindQualifying(t *testing.T) {
	repo := memory.New()
	m := newMatcher(repo)
	ctx := context.Background()

	snapshot := []models.Match{
		match("target", now.Add(2*time.Hour), 4.25, 1.225),
		match("second-rule", now.Add(3*time.Hour), 4.22, 1.225),
		match("started", now.Add(-time.Minute), 4.25, 1.225),
		match("kickoff-now", now, 4.25, 1.225),
		match("other-odds", now.Add(time.Hour), 2.0, 3.5),
		match("no-price", now.Add(time.Hour), 0, 0),
	}

	got, err := m.FindQualifying(ctx, snapshot)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"target", "second-rule", "kickoff-now"}, ids)
}

func TestMatcher_NotifiedMatchesAreExcluded(t *testing.T) {
	repo := memory.New()
	m := newMatcher(repo)
	ctx := context.Background()

	snapshot := []models.Match{match("target", now.Add(time.Hour), 4.25, 1.225)}

	got, err := m.FindQualifying(ctx, snapshot)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, m.MarkNotified(ctx, "target"))
	require.NoError(t, m.MarkNotified(ctx, "target"))

	got, err = m.FindQualifying(ctx, snapshot)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, m.MarkNotified(ctx, "never-seen"))
}

type failingRepo struct{}

func (failingRepo) SaveMatch(context.Context, models.Match) (*models.Match, error) {
	return nil, errors.New("db down")
}

func (failingRepo) MarkMatchNotified(context.Context, string) error {
	return errors.New("db down")
}

func TestMatcher_RepositoryErrors(t *testing.T) {
	m := newMatcher(failingRepo{})
	ctx := context.Background()

	_, err := m.FindQualifying(ctx, []models.Match{match("target", now.Add(time.Hour), 4.25, 1.225)})
	assert.Error(t, err)

	got, err := m.FindQualifying(ctx, []models.Match{match("other", now.Add(time.Hour), 2, 2)})
	assert.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, m.MarkNotified(ctx, "target"))
}

func TestMatcher_FilterRange(t *testing.T) {
	m := newMatcher(memory.New())

	snapshot := []models.Match{
		match("both-in", now.Add(time.Hour), 2.0, 3.0),
		match("home-in", now.Add(time.Hour), 1.5, 9.0),
		match("away-in", now.Add(time.Hour), 12.0, 5.0),
		match("none-in", now.Add(time.Hour), 1.2, 11.0),
		match("past", now.Add(-time.Hour), 2.0, 3.0),
		match("no-away", now.Add(time.Hour), 2.0, 0),
	}

	got := m.FilterRange(snapshot, 1.5, 5.0)

	ids := make([]string, 0, len(got))
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"both-in", "home-in", "away-in"}, ids)

	assert.NotNil(t, m.FilterRange(nil, 1.5, 5.0))
	assert.Empty(t, m.FilterRange(nil, 1.5, 5.0))
}
