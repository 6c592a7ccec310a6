package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/oddsfeed"
)

// Redis repassa cada snapshot publicado pelo feed para fora do processo:
// Pub/Sub para tiers de WebSocket externos e chave odds:current:<match>
// como cache de leitura. Fila interna limitada; snapshot descartado aqui
// não é perda de verdade, o próximo delta carrega o estado completo.
type Redis struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
	log     *zap.Logger
	ch      chan oddsfeed.Snapshot

	OnError func(stage string) // métricas
}

func NewRedis(client *redis.Client, channel string, ttl time.Duration, log *zap.Logger) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		ttl:     ttl,
		log:     log,
		ch:      make(chan oddsfeed.Snapshot, 256),
	}
}

// Enqueue é registrado como Feed.OnPublish: roda sob o lock do feed, então
// só enfileira sem bloquear
func (b *Redis) Enqueue(s oddsfeed.Snapshot) {
	select {
	case b.ch <- s:
	default:
	}
}

// Run consome a fila e escreve no Redis até o contexto encerrar
func (b *Redis) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-b.ch:
			b.publish(ctx, s)
		}
	}
}

func key(matchID string) string { return "odds:current:" + matchID }

func (b *Redis) publish(ctx context.Context, s oddsfeed.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := b.client.Set(ctx, key(s.MatchID), payload, b.ttl).Err(); err != nil {
		b.log.Warn("redis set current odds failed", zap.String("match_id", s.MatchID), zap.Error(err))
		if b.OnError != nil {
			b.OnError("cache")
		}
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.Warn("redis publish failed", zap.String("match_id", s.MatchID), zap.Error(err))
		if b.OnError != nil {
			b.OnError("publish")
		}
	}
}
