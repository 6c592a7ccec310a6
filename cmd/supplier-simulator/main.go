package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/shared/config"
	"github.com/radieske/bet-core-engine/internal/shared/kafka"
	"github.com/radieske/bet-core-engine/internal/shared/logger"
	"github.com/radieske/bet-core-engine/internal/shared/metrics"
	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

// Confrontos simulados; cada rodada gera um match_id novo, já que partida
// liquidada tem odds congeladas no core
var fixtures = [][2]string{
	{"Flamengo", "Palmeiras"},
	{"Grêmio", "Internacional"},
	{"Corinthians", "Santos"},
	{"São Paulo", "Vasco"},
}

var (
	oddsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supplier_odds_published_total",
		Help: "Eventos odds_updates publicados",
	})
	resultsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supplier_results_published_total",
		Help: "Eventos match_results publicados",
	})
)

// simulator gera ciclos de partida: odds aleatórias plausíveis a cada tick
// e, no fim do ciclo, um resultado (ou cancelamento)
type simulator struct {
	log     *zap.Logger
	odds    *kafka.Writer
	results *kafka.Writer
	source  string

	seq uint64

	mu   sync.RWMutex
	live map[string]events.OddsUpdate
}

func rnd(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

func (s *simulator) nextMatchID() string {
	return fmt.Sprintf("MATCH_%03d", atomic.AddUint64(&s.seq, 1))
}

// runFixture roda ciclos consecutivos de um confronto até o contexto encerrar
func (s *simulator) runFixture(ctx context.Context, home, away string) {
	for ctx.Err() == nil {
		s.runCycle(ctx, home, away)
	}
}

func (s *simulator) runCycle(ctx context.Context, home, away string) {
	matchID := s.nextMatchID()
	ev := events.OddsUpdate{
		MatchID:  matchID,
		HomeTeam: home,
		AwayTeam: away,
		Market:   "1x2",
		Source:   s.source,
	}

	ticks := 10 + rand.Intn(11)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	var version int64
	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		version++
		ev.Version = version
		ev.UpdatedAt = time.Now().UTC()
		ev.Selections = []events.Selection{
			{Label: "home", Odds: rnd(1.40, 3.50)},
			{Label: "draw", Odds: rnd(2.50, 4.50)},
			{Label: "away", Odds: rnd(2.00, 5.00)},
		}
		s.publishOdds(ctx, ev)
	}

	s.publishResult(ctx, ev)

	s.mu.Lock()
	delete(s.live, matchID)
	s.mu.Unlock()
}

func (s *simulator) publishOdds(ctx context.Context, ev events.OddsUpdate) {
	s.mu.Lock()
	s.live[ev.MatchID] = ev
	s.mu.Unlock()

	b, _ := json.Marshal(ev)
	if err := kafka.WriteJSON(ctx, s.odds, ev.MatchID, b); err != nil {
		s.log.Warn("odds publish failed", zap.String("match_id", ev.MatchID), zap.Error(err))
		return
	}
	oddsPublished.Inc()
}

// publishResult sorteia o desfecho: vencedor ponderado pela probabilidade
// implícita das odds finais, com chance pequena de cancelamento
func (s *simulator) publishResult(ctx context.Context, ev events.OddsUpdate) {
	result := events.MatchResult{
		MatchID: ev.MatchID,
		Source:  s.source,
		Ts:      time.Now().UTC(),
	}
	if rand.Intn(100) < 5 {
		result.Cancelled = true
		result.Reason = "match abandoned"
	} else {
		result.WinningSelection = weightedWinner(ev.Selections)
	}

	b, _ := json.Marshal(result)
	if err := kafka.WriteJSON(ctx, s.results, ev.MatchID, b); err != nil {
		s.log.Warn("result publish failed", zap.String("match_id", ev.MatchID), zap.Error(err))
		return
	}
	resultsPublished.Inc()
	s.log.Info("match result published",
		zap.String("match_id", ev.MatchID),
		zap.String("winning_selection", result.WinningSelection),
		zap.Bool("cancelled", result.Cancelled),
	)
}

// weightedWinner sorteia uma seleção com peso 1/odd (probabilidade implícita)
func weightedWinner(selections []events.Selection) string {
	total := 0.0
	for _, sel := range selections {
		total += 1 / sel.Odds
	}
	r := rand.Float64() * total
	for _, sel := range selections {
		r -= 1 / sel.Odds
		if r <= 0 {
			return sel.Label
		}
	}
	return selections[len(selections)-1].Label
}

// liveMatches lista as partidas em andamento (debug)
func (s *simulator) liveMatches(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]events.OddsUpdate, 0, len(s.live))
	for _, ev := range s.live {
		out = append(out, ev)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prometheus.MustRegister(oddsPublished, resultsPublished)

	oddsWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicOddsUpdates)
	defer oddsWriter.Close()
	resultsWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchResults)
	defer resultsWriter.Close()

	sim := &simulator{
		log:     log,
		odds:    oddsWriter,
		results: resultsWriter,
		source:  cfg.ServiceName,
		live:    make(map[string]events.OddsUpdate),
	}

	for _, f := range fixtures {
		go sim.runFixture(ctx, f[0], f[1])
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	mux := http.NewServeMux()
	mux.HandleFunc("/matches", sim.liveMatches)
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		log.Info("supplier-simulator running",
			zap.String("addr", srv.Addr),
			zap.String("odds_topic", cfg.TopicOddsUpdates),
			zap.String("results_topic", cfg.TopicMatchResults),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
