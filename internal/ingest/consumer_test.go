package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/oddsfeed"
	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

func payload(t *testing.T, ev events.OddsUpdate) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleCreatesAndUpdatesMatch(t *testing.T) {
	feed := oddsfeed.New(zap.NewNop())
	c := &Consumer{Log: zap.NewNop(), Feed: feed}

	ev := events.OddsUpdate{
		MatchID:  "MATCH_007",
		HomeTeam: "Grêmio",
		AwayTeam: "Internacional",
		Market:   "1x2",
		Selections: []events.Selection{
			{Label: "home", Odds: 2.10},
			{Label: "draw", Odds: 3.20},
			{Label: "away", Odds: 3.60},
		},
	}
	require.NoError(t, c.Handle(payload(t, ev)))

	snap, err := feed.Snapshot("MATCH_007")
	require.NoError(t, err)
	assert.Equal(t, oddsfeed.StatusLive, snap.Status)
	assert.Equal(t, int64(1), snap.Version)

	ev.Selections[0].Odds = 2.05
	require.NoError(t, c.Handle(payload(t, ev)))
	snap, _ = feed.Snapshot("MATCH_007")
	assert.Equal(t, int64(2), snap.Version)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	feed := oddsfeed.New(zap.NewNop())
	c := &Consumer{Log: zap.NewNop(), Feed: feed}

	assert.Error(t, c.Handle([]byte("not json")))
	assert.Error(t, c.Handle(payload(t, events.OddsUpdate{MatchID: ""})))
	assert.Error(t, c.Handle(payload(t, events.OddsUpdate{MatchID: "x", Selections: nil})))
}

func TestHandleRejectsUpdateForSettledMatch(t *testing.T) {
	feed := oddsfeed.New(zap.NewNop())
	feed.Seed("MATCH_001", "Flamengo", "Palmeiras", "1x2", []events.Selection{
		{Label: "home", Odds: 1.85},
	}, oddsfeed.StatusLive)
	require.NoError(t, feed.SetStatus("MATCH_001", oddsfeed.StatusSettled))

	c := &Consumer{Log: zap.NewNop(), Feed: feed}
	err := c.Handle(payload(t, events.OddsUpdate{
		MatchID:    "MATCH_001",
		Selections: []events.Selection{{Label: "home", Odds: 2.0}},
	}))
	assert.ErrorIs(t, err, oddsfeed.ErrMatchClosed)
}
