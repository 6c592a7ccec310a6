package bet

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/ledger"
	"github.com/radieske/bet-core-engine/internal/oddsfeed"
	"github.com/radieske/bet-core-engine/internal/wallet"
	"github.com/radieske/bet-core-engine/pkg/contracts/events"
)

var (
	ErrInvalidStake     = errors.New("stake must be positive")
	ErrMatchNotLive     = errors.New("match not open for betting")
	ErrSelectionUnknown = errors.New("selection not offered for match")
	ErrBetNotFound      = errors.New("bet not found")
	ErrBetExists        = errors.New("bet already tracked")
	ErrAlreadySettled   = errors.New("bet already settled")
)

// State de uma aposta. PENDING -> WON | LOST | VOID, todos terminais.
type State string

const (
	StatePending State = "PENDING"
	StateWon     State = "WON"
	StateLost    State = "LOST"
	StateVoid    State = "VOID"
)

// Bet registra a aposta com as odds travadas no aceite. OddsLocked é
// imutável: o payout é sempre stake * odds_locked, nunca a odd corrente.
type Bet struct {
	ID                   string     `json:"id"`
	AccountID            string     `json:"account_id"`
	MatchID              string     `json:"match_id"`
	Market               string     `json:"market"`
	Selection            string     `json:"selection"`
	StakeCents           int64      `json:"stake_cents"`
	OddsLocked           float64    `json:"odds_locked"`
	PotentialPayoutCents int64      `json:"potential_payout_cents"`
	State                State      `json:"state"`
	CreatedAt            time.Time  `json:"created_at"`
	SettledAt            *time.Time `json:"settled_at,omitempty"`
}

// Funds é o contrato com a carteira: reserva e liquidação de stake
type Funds interface {
	ReserveForBet(ctx context.Context, accountID string, stakeCents int64, betID string) (wallet.ReservationToken, error)
	SettleReservation(ctx context.Context, token wallet.ReservationToken, outcome wallet.Outcome, payoutCents int64) (ledger.Entry, error)
}

// OddsSource fornece o snapshot corrente de uma partida
type OddsSource interface {
	Snapshot(matchID string) (oddsfeed.Snapshot, error)
}

// StakeObserver é notificado de cada stake aceito (progresso de wagering)
type StakeObserver interface {
	OnStake(ctx context.Context, accountID string, stakeCents int64)
}

// Archive persiste apostas em banco (write-behind, melhor esforço)
type Archive interface {
	InsertBet(ctx context.Context, b Bet) error
	UpdateBetState(ctx context.Context, b Bet) error
}

// Publisher emite notificações bet_settled (melhor esforço)
type Publisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

type trackedBet struct {
	mu    sync.Mutex
	bet   Bet
	token wallet.ReservationToken
}

// Engine é a máquina de estados central de apostas. Valida contra o feed,
// reserva fundos via carteira e liquida de forma idempotente.
type Engine struct {
	feed    OddsSource
	funds   Funds
	stakes  StakeObserver // opcional
	archive Archive       // opcional
	publ    Publisher     // opcional
	log     *zap.Logger

	mu   sync.RWMutex
	bets map[string]*trackedBet

	// métricas (callbacks opcionais)
	OnPlaced  func()
	OnSettled func(outcome string)
}

func NewEngine(feed OddsSource, funds Funds, log *zap.Logger) *Engine {
	return &Engine{
		feed:  feed,
		funds: funds,
		log:   log,
		bets:  make(map[string]*trackedBet),
	}
}

// WithStakeObserver liga o bonus accounting ao engine
func (e *Engine) WithStakeObserver(o StakeObserver) *Engine { e.stakes = o; return e }

// WithArchive liga a persistência write-behind de apostas
func (e *Engine) WithArchive(a Archive) *Engine { e.archive = a; return e }

// WithPublisher liga o produtor de eventos bet_settled
func (e *Engine) WithPublisher(p Publisher) *Engine { e.publ = p; return e }

// payoutFor arredonda stake * odds para o centavo mais próximo
func payoutFor(stakeCents int64, odds float64) int64 {
	return int64(math.Round(float64(stakeCents) * odds))
}

// Place aceita uma aposta: lê o snapshot de odds, reserva o stake e cria a
// aposta PENDING com a odd lida no instante da intenção (política aceita:
// sem revalidação de odd no commit). Tudo-ou-nada: falha depois da reserva
// e antes da aposta existir desfaz a reserva com um void compensatório.
func (e *Engine) Place(ctx context.Context, accountID, matchID, selection string, stakeCents int64) (Bet, error) {
	if stakeCents <= 0 {
		return Bet{}, ErrInvalidStake
	}

	// 1) snapshot no instante da intenção
	snap, err := e.feed.Snapshot(matchID)
	if err != nil {
		return Bet{}, err
	}
	if !snap.Status.Bettable() {
		return Bet{}, ErrMatchNotLive
	}
	odds, ok := snap.SelectionOdds(selection)
	if !ok {
		return Bet{}, ErrSelectionUnknown
	}

	// 2) reserva o stake (linearizado por conta no ledger)
	betID := uuid.NewString()
	token, err := e.funds.ReserveForBet(ctx, accountID, stakeCents, betID)
	if err != nil {
		return Bet{}, err
	}

	// cliente desconectou entre reserva e commit: nenhuma reserva pendurada
	if ctx.Err() != nil {
		if _, verr := e.funds.SettleReservation(context.Background(), token, wallet.OutcomeVoid, 0); verr != nil {
			e.log.Error("rollback of orphan reservation failed",
				zap.String("bet_id", betID), zap.Error(verr))
		}
		return Bet{}, ctx.Err()
	}

	// 3) commit da aposta PENDING
	b := Bet{
		ID:                   betID,
		AccountID:            accountID,
		MatchID:              matchID,
		Market:               snap.Market,
		Selection:            selection,
		StakeCents:           stakeCents,
		OddsLocked:           odds,
		PotentialPayoutCents: payoutFor(stakeCents, odds),
		State:                StatePending,
		CreatedAt:            time.Now().UTC(),
	}

	e.mu.Lock()
	e.bets[betID] = &trackedBet{bet: b, token: token}
	e.mu.Unlock()

	if e.archive != nil {
		if aerr := e.archive.InsertBet(ctx, b); aerr != nil {
			e.log.Warn("bet archive insert failed", zap.String("bet_id", betID), zap.Error(aerr))
		}
	}
	if e.stakes != nil {
		e.stakes.OnStake(ctx, accountID, stakeCents)
	}
	if e.OnPlaced != nil {
		e.OnPlaced()
	}
	return b, nil
}

// Restore reanexa no boot uma aposta PENDING vinda do arquivo, junto com o
// token da reserva reconstruído do journal. Não reserva fundos de novo.
func (e *Engine) Restore(b Bet, token wallet.ReservationToken) error {
	if b.State != StatePending {
		return ErrAlreadySettled
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.bets[b.ID]; ok {
		return ErrBetExists
	}
	e.bets[b.ID] = &trackedBet{bet: b, token: token}
	return nil
}

// Get retorna a aposta pelo id
func (e *Engine) Get(betID string) (Bet, error) {
	e.mu.RLock()
	tb, ok := e.bets[betID]
	e.mu.RUnlock()
	if !ok {
		return Bet{}, ErrBetNotFound
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.bet, nil
}

// ListByAccount retorna as apostas de uma conta, mais recentes primeiro
func (e *Engine) ListByAccount(accountID string) []Bet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Bet
	for _, tb := range e.bets {
		tb.mu.Lock()
		if tb.bet.AccountID == accountID {
			out = append(out, tb.bet)
		}
		tb.mu.Unlock()
	}
	return out
}

// Settle liquida uma aposta PENDING como WON ou LOST. Transição terminal;
// chamada repetida falha com ErrAlreadySettled e não credita de novo
// (retry seguro para o feed de resultados).
func (e *Engine) Settle(ctx context.Context, betID string, outcome State) (Bet, error) {
	if outcome != StateWon && outcome != StateLost {
		return Bet{}, errors.New("outcome must be WON or LOST")
	}
	return e.transition(ctx, betID, outcome, "")
}

// Void anula uma aposta PENDING (ex.: partida cancelada) devolvendo o
// stake via BET_VOID
func (e *Engine) Void(ctx context.Context, betID, reason string) (Bet, error) {
	return e.transition(ctx, betID, StateVoid, reason)
}

func (e *Engine) transition(ctx context.Context, betID string, to State, reason string) (Bet, error) {
	e.mu.RLock()
	tb, ok := e.bets[betID]
	e.mu.RUnlock()
	if !ok {
		return Bet{}, ErrBetNotFound
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.bet.State != StatePending {
		return tb.bet, ErrAlreadySettled
	}

	var (
		outcome wallet.Outcome
		payout  int64
	)
	switch to {
	case StateWon:
		outcome, payout = wallet.OutcomeWon, tb.bet.PotentialPayoutCents
	case StateLost:
		outcome, payout = wallet.OutcomeLost, 0
	case StateVoid:
		outcome, payout = wallet.OutcomeVoid, 0
	}

	if _, err := e.funds.SettleReservation(ctx, tb.token, outcome, payout); err != nil {
		return tb.bet, err
	}

	now := time.Now().UTC()
	tb.bet.State = to
	tb.bet.SettledAt = &now

	if e.archive != nil {
		if aerr := e.archive.UpdateBetState(ctx, tb.bet); aerr != nil {
			e.log.Warn("bet archive update failed", zap.String("bet_id", betID), zap.Error(aerr))
		}
	}
	if e.publ != nil {
		paid := payout
		if to == StateVoid {
			paid = tb.bet.StakeCents
		}
		if perr := e.publ.PublishBetSettled(ctx, events.BetSettled{
			BetID:       betID,
			AccountID:   tb.bet.AccountID,
			MatchID:     tb.bet.MatchID,
			Outcome:     string(to),
			PayoutCents: paid,
			Ts:          now,
		}); perr != nil {
			e.log.Warn("bet_settled publish failed", zap.String("bet_id", betID), zap.Error(perr))
		}
	}
	if e.OnSettled != nil {
		e.OnSettled(string(to))
	}
	if reason != "" {
		e.log.Info("bet voided", zap.String("bet_id", betID), zap.String("reason", reason))
	}
	return tb.bet, nil
}

// SettleMatch liquida todas as apostas PENDING de uma partida: vencedoras
// pela seleção, perdedoras caso contrário. Retorna quantas liquidou.
func (e *Engine) SettleMatch(ctx context.Context, matchID, winningSelection string) int {
	settled := 0
	for _, p := range e.pendingFor(matchID) {
		to := StateLost
		if p.selection == winningSelection {
			to = StateWon
		}
		if _, err := e.Settle(ctx, p.id, to); err != nil && !errors.Is(err, ErrAlreadySettled) {
			e.log.Error("match settlement failed for bet",
				zap.String("bet_id", p.id), zap.String("match_id", matchID), zap.Error(err))
			continue
		}
		settled++
	}
	return settled
}

// VoidMatch anula todas as apostas PENDING de uma partida cancelada
func (e *Engine) VoidMatch(ctx context.Context, matchID, reason string) int {
	voided := 0
	for _, p := range e.pendingFor(matchID) {
		if _, err := e.Void(ctx, p.id, reason); err != nil && !errors.Is(err, ErrAlreadySettled) {
			e.log.Error("match void failed for bet",
				zap.String("bet_id", p.id), zap.String("match_id", matchID), zap.Error(err))
			continue
		}
		voided++
	}
	return voided
}

type pendingBet struct {
	id        string
	selection string
}

func (e *Engine) pendingFor(matchID string) []pendingBet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []pendingBet
	for id, tb := range e.bets {
		tb.mu.Lock()
		if tb.bet.MatchID == matchID && tb.bet.State == StatePending {
			out = append(out, pendingBet{id: id, selection: tb.bet.Selection})
		}
		tb.mu.Unlock()
	}
	return out
}
