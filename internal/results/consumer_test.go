package results

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/bet"
	"github.com/radieske/bet-core-engine/internal/ledger"
	"github.com/radieske/bet-core-engine/internal/oddsfeed"
	"github.com/radieske/bet-core-engine/internal/wallet"
	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

type fixture struct {
	consumer *Consumer
	engine   *bet.Engine
	feed     *oddsfeed.Feed
	wsvc     *wallet.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewStore(zap.NewNop(), nil)
	reg := wallet.NewRegistry(store)
	_, err := reg.Register("acc-1", "INR")
	require.NoError(t, err)
	wsvc := wallet.NewService(store, reg, reg, zap.NewNop())
	_, err = wsvc.Deposit(context.Background(), "acc-1", 100_000)
	require.NoError(t, err)

	feed := oddsfeed.New(zap.NewNop())
	feed.Seed("MATCH_001", "Flamengo", "Palmeiras", "1x2", []events.Selection{
		{Label: "home", Odds: 1.85},
		{Label: "draw", Odds: 3.20},
		{Label: "away", Odds: 4.10},
	}, oddsfeed.StatusLive)
	engine := bet.NewEngine(feed, wsvc, zap.NewNop())

	return &fixture{
		consumer: &Consumer{Log: zap.NewNop(), Feed: feed, Engine: engine},
		engine:   engine,
		feed:     feed,
		wsvc:     wsvc,
	}
}

func result(t *testing.T, ev events.MatchResult) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	bal, _, err := f.wsvc.Balance("acc-1")
	require.NoError(t, err)
	return bal
}

func TestHandleSettlesMatchAndFreezesOdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	winner, err := f.engine.Place(ctx, "acc-1", "MATCH_001", "home", 10_000)
	require.NoError(t, err)
	loser, err := f.engine.Place(ctx, "acc-1", "MATCH_001", "away", 10_000)
	require.NoError(t, err)

	require.NoError(t, f.consumer.Handle(ctx, result(t, events.MatchResult{
		MatchID: "MATCH_001", WinningSelection: "home",
	})))

	w, _ := f.engine.Get(winner.ID)
	l, _ := f.engine.Get(loser.ID)
	assert.Equal(t, bet.StateWon, w.State)
	assert.Equal(t, bet.StateLost, l.State)
	assert.Equal(t, int64(98_500), f.balance(t))

	snap, _ := f.feed.Snapshot("MATCH_001")
	assert.Equal(t, oddsfeed.StatusSettled, snap.Status)

	// aposta nova depois do resultado é recusada
	_, err = f.engine.Place(ctx, "acc-1", "MATCH_001", "home", 1_000)
	assert.ErrorIs(t, err, bet.ErrMatchNotLive)
}

// Resultado entregue duas vezes: mesma liquidação, nenhum crédito extra
func TestHandleIsIdempotentOnRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Place(ctx, "acc-1", "MATCH_001", "home", 10_000)
	require.NoError(t, err)

	msg := result(t, events.MatchResult{MatchID: "MATCH_001", WinningSelection: "home"})
	require.NoError(t, f.consumer.Handle(ctx, msg))
	require.NoError(t, f.consumer.Handle(ctx, msg))

	assert.Equal(t, int64(108_500), f.balance(t))
}

func TestHandleCancelledMatchVoidsBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Place(ctx, "acc-1", "MATCH_001", "home", 10_000)
	require.NoError(t, err)
	_, err = f.engine.Place(ctx, "acc-1", "MATCH_001", "away", 15_000)
	require.NoError(t, err)

	require.NoError(t, f.consumer.Handle(ctx, result(t, events.MatchResult{
		MatchID: "MATCH_001", Cancelled: true, Reason: "abandoned",
	})))

	assert.Equal(t, int64(100_000), f.balance(t))
	snap, _ := f.feed.Snapshot("MATCH_001")
	assert.Equal(t, oddsfeed.StatusSettled, snap.Status)
}

func TestHandleRejectsPoisonPayloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Error(t, f.consumer.Handle(ctx, []byte("not json")))
	assert.Error(t, f.consumer.Handle(ctx, result(t, events.MatchResult{MatchID: ""})))
	assert.Error(t, f.consumer.Handle(ctx, result(t, events.MatchResult{MatchID: "MATCH_001"})))

	err := f.consumer.Handle(ctx, result(t, events.MatchResult{
		MatchID: "ghost", WinningSelection: "home",
	}))
	assert.ErrorIs(t, err, oddsfeed.ErrMatchNotFound)
}
