package oddsfeed

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchClosed   = errors.New("match settled; odds frozen")
)

// Status do ciclo de vida de uma partida no feed
type Status string

const (
	StatusUpcoming Status = "UPCOMING"
	StatusLive     Status = "LIVE"
	StatusSettled  Status = "SETTLED"
)

// Bettable informa se a partida aceita apostas neste status
func (s Status) Bettable() bool { return s == StatusUpcoming || s == StatusLive }

// Snapshot é a visão corrente de uma partida: seleções ordenadas e versão
// monotônica das odds
type Snapshot struct {
	MatchID    string             `json:"match_id"`
	HomeTeam   string             `json:"home_team"`
	AwayTeam   string             `json:"away_team"`
	Market     string             `json:"market"`
	Selections []events.Selection `json:"selections"`
	Version    int64              `json:"version"`
	Status     Status             `json:"status"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// SelectionOdds retorna a odd da seleção, se existir
func (s Snapshot) SelectionOdds(label string) (float64, bool) {
	for _, sel := range s.Selections {
		if sel.Label == label {
			return sel.Odds, true
		}
	}
	return 0, false
}

// Delta é o que um assinante recebe a cada mudança. Resync=true indica que
// deltas foram descartados por backpressure e o snapshot deve ser refeito.
type Delta struct {
	Snapshot
	Resync bool `json:"resync,omitempty"`
}

// Subscription é um stream vivo de deltas de uma partida. Nunca reinicia:
// começa do snapshot corrente, não do histórico.
type Subscription struct {
	C <-chan Delta

	feed    *Feed
	matchID string
	ch      chan Delta
	closed  bool
}

// Cancel remove o assinante e fecha o canal
func (sub *Subscription) Cancel() {
	sub.feed.unsubscribe(sub)
}

const subscriberBuffer = 16

// Feed mantém as odds correntes por partida e faz fan-out de deltas.
// Entrega at-least-once com fila limitada por assinante: assinante lento
// perde os deltas mais antigos e é sinalizado para refazer o snapshot.
// Nenhuma operação do feed toca lock de conta.
type Feed struct {
	mu      sync.RWMutex
	matches map[string]*match
	log     *zap.Logger

	// métricas (callbacks opcionais)
	OnUpdate      func()
	OnDrop        func()
	OnSubscribers func(delta int)

	// OnPublish recebe cada snapshot publicado (ponte Redis). Chamado sob o
	// lock do feed: precisa ser barato e nunca bloquear.
	OnPublish func(Snapshot)
}

type match struct {
	snap Snapshot
	subs map[*Subscription]struct{}
}

func New(log *zap.Logger) *Feed {
	return &Feed{matches: make(map[string]*match), log: log}
}

// Seed registra uma partida nova no catálogo
func (f *Feed) Seed(matchID, homeTeam, awayTeam, market string, selections []events.Selection, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.matches[matchID]; ok {
		return
	}
	f.matches[matchID] = &match{
		snap: Snapshot{
			MatchID:    matchID,
			HomeTeam:   homeTeam,
			AwayTeam:   awayTeam,
			Market:     market,
			Selections: cloneSelections(selections),
			Version:    1,
			Status:     status,
			UpdatedAt:  time.Now().UTC(),
		},
		subs: make(map[*Subscription]struct{}),
	}
}

// Snapshot retorna a visão corrente de uma partida
func (f *Feed) Snapshot(matchID string) (Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.matches[matchID]
	if !ok {
		return Snapshot{}, ErrMatchNotFound
	}
	return m.snap.clone(), nil
}

// List retorna o catálogo ordenado por id de partida
func (f *Feed) List() []Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Snapshot, 0, len(f.matches))
	for _, m := range f.matches {
		out = append(out, m.snap.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// UpdateOdds aplica um evento confiável de preço: incrementa a versão e
// publica o delta. Partida liquidada tem odds congeladas.
func (f *Feed) UpdateOdds(matchID string, selections []events.Selection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	if m.snap.Status == StatusSettled {
		return ErrMatchClosed
	}

	m.snap.Selections = cloneSelections(selections)
	m.snap.Version++
	m.snap.UpdatedAt = time.Now().UTC()

	f.publishLocked(m)
	if f.OnUpdate != nil {
		f.OnUpdate()
	}
	return nil
}

// Apply trata um OddsUpdate vindo do ingest: cria a partida se for nova,
// senão atualiza as odds
func (f *Feed) Apply(ev events.OddsUpdate) error {
	f.mu.RLock()
	_, known := f.matches[ev.MatchID]
	f.mu.RUnlock()

	if !known {
		f.Seed(ev.MatchID, ev.HomeTeam, ev.AwayTeam, ev.Market, ev.Selections, StatusLive)
		return nil
	}
	return f.UpdateOdds(ev.MatchID, ev.Selections)
}

// SetStatus muda o estado da partida e publica o delta. SETTLED é terminal.
func (f *Feed) SetStatus(matchID string, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	if m.snap.Status == StatusSettled {
		return ErrMatchClosed
	}
	m.snap.Status = status
	m.snap.UpdatedAt = time.Now().UTC()
	f.publishLocked(m)
	return nil
}

// Subscribe cria um stream de deltas da partida. O primeiro delta entregue
// é o snapshot corrente.
func (f *Feed) Subscribe(matchID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}

	ch := make(chan Delta, subscriberBuffer)
	sub := &Subscription{C: ch, feed: f, matchID: matchID, ch: ch}
	m.subs[sub] = struct{}{}
	ch <- Delta{Snapshot: m.snap.clone()}

	if f.OnSubscribers != nil {
		f.OnSubscribers(+1)
	}
	return sub, nil
}

// publishLocked envia o delta para todos os assinantes da partida.
// Fila cheia: descarta o delta mais antigo e marca o novo com Resync —
// assinante lento nunca bloqueia a publicação.
func (f *Feed) publishLocked(m *match) {
	if f.OnPublish != nil {
		f.OnPublish(m.snap.clone())
	}
	for sub := range m.subs {
		d := Delta{Snapshot: m.snap.clone()}
		select {
		case sub.ch <- d:
			continue
		default:
		}

		// backpressure: abre espaço descartando o mais antigo
		select {
		case <-sub.ch:
			if f.OnDrop != nil {
				f.OnDrop()
			}
		default:
		}
		d.Resync = true
		select {
		case sub.ch <- d:
		default:
		}
	}
}

func (f *Feed) unsubscribe(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if m, ok := f.matches[sub.matchID]; ok {
		delete(m.subs, sub)
	}
	close(sub.ch)
	if f.OnSubscribers != nil {
		f.OnSubscribers(-1)
	}
}

func (s Snapshot) clone() Snapshot {
	s.Selections = cloneSelections(s.Selections)
	return s
}

func cloneSelections(in []events.Selection) []events.Selection {
	out := make([]events.Selection, len(in))
	copy(out, in)
	return out
}
