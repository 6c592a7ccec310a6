package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/oddsfeed"
	"github.com/radieske/bet-core-engine/internal/shared/kafka"
	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

// StatusSetter congela as odds de uma partida liquidada
type StatusSetter interface {
	SetStatus(matchID string, status oddsfeed.Status) error
}

// Settler liquida ou anula todas as apostas pendentes de uma partida
type Settler interface {
	SettleMatch(ctx context.Context, matchID, winningSelection string) int
	VoidMatch(ctx context.Context, matchID, reason string) int
}

// Consumer lê match_results do Kafka, congela as odds e liquida as apostas
// da partida. Payload podre vai para a DLQ; retry de um resultado já
// aplicado é no-op (liquidação idempotente).
type Consumer struct {
	Log    *zap.Logger
	Reader *kafkago.Reader
	Feed   StatusSetter
	Engine Settler
	DLQ    *kafkago.Writer // opcional

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop de consumo até o contexto encerrar
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			if c.OnError != nil {
				c.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if c.OnConsumed != nil {
			c.OnConsumed()
		}

		if err := c.Handle(ctx, m.Value); err != nil {
			c.Log.Error("match result rejected", zap.Error(err))
			if c.OnError != nil {
				c.OnError("handle")
			}
			if c.DLQ != nil {
				if derr := kafka.WriteJSON(ctx, c.DLQ, string(m.Key), m.Value); derr != nil {
					c.Log.Error("dlq write failed", zap.Error(derr))
				}
			}
		}
	}
}

// Handle aplica um resultado de partida: congela as odds e liquida (ou
// anula) as apostas pendentes
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var ev events.MatchResult
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decode match_results: %w", err)
	}
	if ev.MatchID == "" || (!ev.Cancelled && ev.WinningSelection == "") {
		return fmt.Errorf("incomplete match result")
	}

	// congela as odds antes de liquidar; nenhuma aposta nova entra durante
	// a liquidação
	if err := c.Feed.SetStatus(ev.MatchID, oddsfeed.StatusSettled); err != nil {
		if errors.Is(err, oddsfeed.ErrMatchNotFound) {
			return fmt.Errorf("result for unknown match %s: %w", ev.MatchID, err)
		}
		// ErrMatchClosed: resultado repetido; segue para garantir a
		// liquidação das apostas que faltam
	}

	var n int
	if ev.Cancelled {
		n = c.Engine.VoidMatch(ctx, ev.MatchID, ev.Reason)
	} else {
		n = c.Engine.SettleMatch(ctx, ev.MatchID, ev.WinningSelection)
	}
	c.Log.Info("match result applied",
		zap.String("match_id", ev.MatchID),
		zap.String("winning_selection", ev.WinningSelection),
		zap.Bool("cancelled", ev.Cancelled),
		zap.Int("bets_settled", n),
	)
	return nil
}
