package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Core agrupa as métricas Prometheus do core-service.
// Os pacotes de domínio recebem callbacks, não importam prometheus direto.
type Core struct {
	LedgerAppends       *prometheus.CounterVec
	LedgerRejections    *prometheus.CounterVec
	IntegrityViolations prometheus.Counter

	BetsPlaced  prometheus.Counter
	BetsSettled *prometheus.CounterVec

	OddsUpdates     prometheus.Counter
	OddsSubscribers prometheus.Gauge
	OddsDropped     prometheus.Counter

	BonusReleases prometheus.Counter
}

// NewCore cria e registra as métricas no registry default
func NewCore() *Core {
	c := &Core{
		LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Lançamentos aceitos no ledger, por tipo",
		}, []string{"kind"}),
		LedgerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rejections_total",
			Help: "Lançamentos rejeitados, por motivo",
		}, []string{"reason"}),
		IntegrityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_integrity_violations_total",
			Help: "Violações de invariante detectadas (conta congelada)",
		}),
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bets_placed_total",
			Help: "Apostas aceitas (PENDING criadas)",
		}),
		BetsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bets_settled_total",
			Help: "Apostas liquidadas, por resultado",
		}, []string{"outcome"}),
		OddsUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odds_updates_total",
			Help: "Atualizações de odds aplicadas ao feed",
		}),
		OddsSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "odds_subscribers",
			Help: "Assinantes ativos do feed de odds",
		}),
		OddsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odds_deltas_dropped_total",
			Help: "Deltas descartados por backpressure de assinante",
		}),
		BonusReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonus_releases_total",
			Help: "Bônus convertidos em saldo real",
		}),
	}

	prometheus.MustRegister(
		c.LedgerAppends, c.LedgerRejections, c.IntegrityViolations,
		c.BetsPlaced, c.BetsSettled,
		c.OddsUpdates, c.OddsSubscribers, c.OddsDropped,
		c.BonusReleases,
	)
	return c
}
