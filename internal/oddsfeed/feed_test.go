package oddsfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

func sel(home, draw, away float64) []events.Selection {
	return []events.Selection{
		{Label: "home", Odds: home},
		{Label: "draw", Odds: draw},
		{Label: "away", Odds: away},
	}
}

func newTestFeed(t *testing.T) *Feed {
	t.Helper()
	f := New(zap.NewNop())
	f.Seed("MATCH_001", "Flamengo", "Palmeiras", "1x2", sel(1.85, 3.20, 4.10), StatusLive)
	return f
}

func TestUpdateOddsBumpsVersion(t *testing.T) {
	f := newTestFeed(t)

	before, err := f.Snapshot("MATCH_001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), before.Version)

	require.NoError(t, f.UpdateOdds("MATCH_001", sel(1.90, 3.10, 4.00)))
	after, _ := f.Snapshot("MATCH_001")
	assert.Equal(t, int64(2), after.Version)

	odds, ok := after.SelectionOdds("home")
	require.True(t, ok)
	assert.Equal(t, 1.90, odds)

	// snapshot anterior não é afetado pela atualização
	odds, _ = before.SelectionOdds("home")
	assert.Equal(t, 1.85, odds)
}

func TestSettledMatchFreezesOdds(t *testing.T) {
	f := newTestFeed(t)
	require.NoError(t, f.SetStatus("MATCH_001", StatusSettled))

	err := f.UpdateOdds("MATCH_001", sel(9.0, 9.0, 9.0))
	assert.ErrorIs(t, err, ErrMatchClosed)

	err = f.SetStatus("MATCH_001", StatusLive)
	assert.ErrorIs(t, err, ErrMatchClosed)
}

func TestSubscribeStartsFromCurrentSnapshot(t *testing.T) {
	f := newTestFeed(t)
	require.NoError(t, f.UpdateOdds("MATCH_001", sel(2.00, 3.00, 4.00)))

	sub, err := f.Subscribe("MATCH_001")
	require.NoError(t, err)
	defer sub.Cancel()

	first := <-sub.C
	assert.Equal(t, int64(2), first.Version) // corrente, não histórico
	assert.False(t, first.Resync)

	require.NoError(t, f.UpdateOdds("MATCH_001", sel(2.10, 3.00, 4.00)))
	next := <-sub.C
	assert.Equal(t, int64(3), next.Version)
}

func TestSlowSubscriberDropsOldestAndFlagsResync(t *testing.T) {
	f := newTestFeed(t)
	sub, err := f.Subscribe("MATCH_001")
	require.NoError(t, err)
	defer sub.Cancel()

	// estoura a fila do assinante sem consumir nada
	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, f.UpdateOdds("MATCH_001", sel(1.5, 3.0, 4.0)))
	}

	sawResync := false
	var last Delta
	for i := 0; i < subscriberBuffer; i++ {
		d := <-sub.C
		if d.Resync {
			sawResync = true
		}
		last = d
	}
	assert.True(t, sawResync, "assinante lento precisa ser sinalizado")

	// o delta mais novo sobrevive ao descarte
	assert.Equal(t, int64(1+subscriberBuffer+5), last.Version)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	f := newTestFeed(t)
	slow, _ := f.Subscribe("MATCH_001")
	defer slow.Cancel()
	fast, _ := f.Subscribe("MATCH_001")
	defer fast.Cancel()

	<-fast.C // snapshot inicial
	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, f.UpdateOdds("MATCH_001", sel(1.5, 3.0, 4.0)))
		<-fast.C // consumidor rápido segue recebendo em tempo real
	}
}

func TestApplyCreatesOrUpdates(t *testing.T) {
	f := New(zap.NewNop())

	ev := events.OddsUpdate{
		MatchID:    "MATCH_009",
		HomeTeam:   "Grêmio",
		AwayTeam:   "Internacional",
		Market:     "1x2",
		Selections: sel(2.2, 3.1, 3.4),
	}
	require.NoError(t, f.Apply(ev))

	snap, err := f.Snapshot("MATCH_009")
	require.NoError(t, err)
	assert.Equal(t, StatusLive, snap.Status)
	assert.Equal(t, int64(1), snap.Version)

	ev.Selections = sel(2.3, 3.0, 3.3)
	require.NoError(t, f.Apply(ev))
	snap, _ = f.Snapshot("MATCH_009")
	assert.Equal(t, int64(2), snap.Version)
}

func TestSubscribeUnknownMatch(t *testing.T) {
	f := New(zap.NewNop())
	_, err := f.Subscribe("ghost")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newTestFeed(t)
	sub, _ := f.Subscribe("MATCH_001")
	sub.Cancel()
	sub.Cancel() // não entra em pânico com double-close
}
