package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/bet"
	betrepo "github.com/radieske/bet-core-engine/internal/bet/repo"
	"github.com/radieske/bet-core-engine/internal/bonus"
	bonusrepo "github.com/radieske/bet-core-engine/internal/bonus/repo"
	"github.com/radieske/bet-core-engine/internal/bridge"
	"github.com/radieske/bet-core-engine/internal/httpapi"
	"github.com/radieske/bet-core-engine/internal/ingest"
	"github.com/radieske/bet-core-engine/internal/ledger"
	ledgerrepo "github.com/radieske/bet-core-engine/internal/ledger/repo"
	"github.com/radieske/bet-core-engine/internal/oddsfeed"
	"github.com/radieske/bet-core-engine/internal/producer"
	"github.com/radieske/bet-core-engine/internal/results"
	sharedcache "github.com/radieske/bet-core-engine/internal/shared/cache"
	"github.com/radieske/bet-core-engine/internal/shared/config"
	"github.com/radieske/bet-core-engine/internal/shared/db"
	"github.com/radieske/bet-core-engine/internal/shared/kafka"
	"github.com/radieske/bet-core-engine/internal/shared/logger"
	"github.com/radieske/bet-core-engine/internal/shared/metrics"
	"github.com/radieske/bet-core-engine/internal/wallet"
	"github.com/radieske/bet-core-engine/internal/ws"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Inicializa dependências: Postgres (journal/arquivo) e Redis (ponte)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	m := metrics.NewCore()
	consumerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "core_consumer_errors_total",
		Help: "Erros dos consumidores Kafka, por consumidor e estágio",
	}, []string{"consumer", "stage"})
	prometheus.MustRegister(consumerErrors)

	// Ledger em memória com journal write-behind no Postgres
	journal := ledgerrepo.NewPostgres(pg)
	store := ledger.NewStore(log, journal)
	store.OnAppend = func(kind string) { m.LedgerAppends.WithLabelValues(kind).Inc() }
	store.OnReject = func(reason string) { m.LedgerRejections.WithLabelValues(reason).Inc() }
	store.OnIntegrity = func() { m.IntegrityViolations.Inc() }

	registry := wallet.NewRegistry(store)
	restoreFromJournal(ctx, log, journal, store, registry, cfg.Currency)
	wsvc := wallet.NewService(store, registry, registry, log)

	// Feed de odds em memória + ponte Redis (pub/sub e cache de odds corrente)
	feed := oddsfeed.New(log)
	feed.OnUpdate = m.OddsUpdates.Inc
	feed.OnDrop = m.OddsDropped.Inc
	feed.OnSubscribers = func(delta int) { m.OddsSubscribers.Add(float64(delta)) }

	redisBridge := bridge.NewRedis(redisClient, cfg.RedisPubSubChannel, 60*time.Second, log)
	redisBridge.OnError = func(stage string) { consumerErrors.WithLabelValues("bridge", stage).Inc() }
	feed.OnPublish = redisBridge.Enqueue
	go redisBridge.Run(ctx)

	// Bonus accounting, observando os stakes aceitos pelo engine
	bonusArchive := bonusrepo.NewPostgres(pg)
	bonuses := bonus.NewService(wsvc, log).WithArchive(bonusArchive)
	bonuses.OnRelease = m.BonusReleases.Inc
	grants, err := bonusArchive.ListGrants(ctx)
	if err != nil {
		log.Fatal("bonus archive list grants", zap.Error(err))
	}
	bonuses.Restore(grants)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bonuses.Sweep(ctx)
			}
		}
	}()

	// Producer de eventos bet_settled
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()

	betArchive := betrepo.NewPostgres(pg)
	engine := bet.NewEngine(feed, wsvc, log).
		WithStakeObserver(bonuses).
		WithArchive(betArchive).
		WithPublisher(producer.NewKafkaPublisher(settledWriter))
	engine.OnPlaced = m.BetsPlaced.Inc
	engine.OnSettled = func(outcome string) { m.BetsSettled.WithLabelValues(outcome).Inc() }
	restorePendingBets(ctx, log, betArchive, store, wsvc, engine)

	// Consumidor de odds_updates (supplier -> feed)
	oddsReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicOddsUpdates, "core-odds-feed")
	defer oddsReader.Close()
	oddsConsumer := &ingest.Consumer{
		Log:     log,
		Reader:  oddsReader,
		Feed:    feed,
		OnError: func(stage string) { consumerErrors.WithLabelValues("odds", stage).Inc() },
	}
	go func() { _ = oddsConsumer.Run(ctx) }()

	// Consumidor de match_results (resultado -> liquidação), com DLQ
	resultsReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMatchResults, "core-results")
	defer resultsReader.Close()
	var dlqWriter *kafka.Writer
	if cfg.TopicMatchResultDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchResultDLQ)
		defer dlqWriter.Close()
	}
	resultsConsumer := &results.Consumer{
		Log:     log,
		Reader:  resultsReader,
		Feed:    feed,
		Engine:  engine,
		DLQ:     dlqWriter,
		OnError: func(stage string) { consumerErrors.WithLabelValues("results", stage).Inc() },
	}
	go func() { _ = resultsConsumer.Run(ctx) }()

	// Servidor de métricas e health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})

	// API pública: REST + WebSocket
	hub := ws.NewHub(feed, log, func(*http.Request) bool { return true })
	api := httpapi.NewServer(log, registry, wsvc, feed, engine, bonuses, cfg.Currency).
		WithWebSocket(hub.HandleWS)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router()}
	go func() {
		log.Info("core-service listening",
			zap.String("addr", srv.Addr),
			zap.String("metrics", ":"+cfg.MetricsPort),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}

// restoreFromJournal reconstrói o estado em memória a partir do journal:
// valida a cadeia de cada conta e reanexa os metadados no registry. Conta
// com cadeia corrompida fica de fora e exige intervenção manual.
func restoreFromJournal(ctx context.Context, log *zap.Logger, journal *ledgerrepo.Postgres, store *ledger.Store, registry *wallet.Registry, currency string) {
	accountIDs, err := journal.ListAccounts(ctx)
	if err != nil {
		log.Fatal("journal list accounts", zap.Error(err))
	}
	restored := 0
	for _, id := range accountIDs {
		entries, err := journal.ReplayAccount(ctx, id)
		if err != nil {
			log.Fatal("journal replay", zap.String("account_id", id), zap.Error(err))
		}
		if err := store.Restore(id, entries); err != nil {
			log.Error("journal chain corrupted; account not restored",
				zap.String("account_id", id), zap.Error(err))
			continue
		}
		// o nível de KYC não mora no journal; volta a zero até nova aprovação
		registry.Attach(id, currency, 0)
		restored++
	}
	log.Info("ledger restored from journal", zap.Int("accounts", restored))
}

// restorePendingBets reanexa as apostas PENDING do arquivo ao engine e suas
// reservas à carteira, localizando o BET_RESERVE de cada uma no ledger
// restaurado. Sem isso um restart deixaria stakes reservados sem como
// liquidar ou anular.
func restorePendingBets(ctx context.Context, log *zap.Logger, archive *betrepo.Postgres, store *ledger.Store, wsvc *wallet.Service, engine *bet.Engine) {
	pending, err := archive.ListPending(ctx)
	if err != nil {
		log.Fatal("bet archive list pending", zap.Error(err))
	}
	restored := 0
	for _, b := range pending {
		reserve, ok := findReserveEntry(store, b.AccountID, b.ID)
		if !ok {
			log.Error("pending bet without reserve entry in journal; not restored",
				zap.String("bet_id", b.ID), zap.String("account_id", b.AccountID))
			continue
		}
		token := wallet.ReservationToken{
			BetID:      b.ID,
			AccountID:  b.AccountID,
			StakeCents: b.StakeCents,
			EntryID:    reserve.ID,
		}
		if err := wsvc.RestoreReservation(token, reserve); err != nil {
			log.Error("reservation restore failed", zap.String("bet_id", b.ID), zap.Error(err))
			continue
		}
		if err := engine.Restore(b, token); err != nil {
			log.Error("bet restore failed", zap.String("bet_id", b.ID), zap.Error(err))
			continue
		}
		restored++
	}
	log.Info("pending bets restored from archive", zap.Int("bets", restored))
}

func findReserveEntry(store *ledger.Store, accountID, betID string) (ledger.Entry, bool) {
	entries, err := store.History(accountID)
	if err != nil {
		return ledger.Entry{}, false
	}
	for _, e := range entries {
		if e.Kind == ledger.KindBetReserve && e.RelatedBetID == betID {
			return e, true
		}
	}
	return ledger.Entry{}, false
}
