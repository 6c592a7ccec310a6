package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

// Feed é o destino dos eventos de odds: cria a partida ou atualiza os preços
type Feed interface {
	Apply(ev events.OddsUpdate) error
}

// Consumer lê odds_updates do Kafka e aplica no feed em memória.
// Callbacks de métricas podem ser usadas para monitoramento.
type Consumer struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Feed   Feed

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

		if err := c.Handle(m.Value); err != nil {
			c.Log.Warn("odds update dropped", zap.Error(err))
			if c.OnError != nil {
				c.OnError("handle")
			}
		}
	}
}

// Handle aplica um payload de odds_updates no feed
func (c *Consumer) Handle(value []byte) error {
	var ev events.OddsUpdate
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decode odds_updates: %w", err)
	}
	if ev.MatchID == "" || len(ev.Selections) == 0 {
		return fmt.Errorf("incomplete odds update")
	}
	if err := c.Feed.Apply(ev); err != nil {
		return fmt.Errorf("apply odds for %s: %w", ev.MatchID, err)
	}
	return nil
}
