package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/ledger"
)

var (
	ErrKYCRequired          = errors.New("kyc level 2 required for withdrawal")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrDuplicateReservation = errors.New("reservation already exists for bet")
	ErrUnknownReservation   = errors.New("unknown reservation")
	ErrSettlementMismatch   = errors.New("settlement mismatch: account frozen")
)

// Outcome é o desfecho de uma reserva de aposta
type Outcome string

const (
	OutcomeWon  Outcome = "WON"
	OutcomeLost Outcome = "LOST"
	OutcomeVoid Outcome = "VOID"
)

// KYCProvider responde o nível de verificação de uma conta (0..2).
// Colaborador externo; o default é o próprio Registry.
type KYCProvider interface {
	Level(accountID string) (int, error)
}

// ReservationToken amarra 1:1 a reserva ao lançamento BET_RESERVE e à
// aposta sendo criada
type ReservationToken struct {
	BetID       string
	AccountID   string
	StakeCents  int64
	EntryID     string
}

// reservation acompanha o ciclo de vida de uma reserva até a liquidação.
// settleMu serializa liquidações concorrentes da mesma aposta.
type reservation struct {
	settleMu sync.Mutex
	token    ReservationToken
	reserve  ledger.Entry

	settled bool
	outcome Outcome
	payout  int64
	result  ledger.Entry
}

// settledReservation é o registro compacto que sobra depois da liquidação
// terminal: o suficiente para responder retries de forma idempotente e
// detectar liquidação divergente
type settledReservation struct {
	outcome Outcome
	payout  int64
	result  ledger.Entry
}

// Service expõe as operações de carteira sobre o ledger: depósito, saque
// com gate de KYC, reserva de stake e liquidação idempotente.
type Service struct {
	ledger   *ledger.Store
	accounts *Registry
	kyc      KYCProvider
	log      *zap.Logger

	mu           sync.Mutex
	reservations map[string]*reservation       // por betID, só PENDING
	settled      map[string]settledReservation // por betID, pós-liquidação
}

func NewService(store *ledger.Store, accounts *Registry, kyc KYCProvider, log *zap.Logger) *Service {
	return &Service{
		ledger:       store,
		accounts:     accounts,
		kyc:          kyc,
		log:          log,
		reservations: make(map[string]*reservation),
		settled:      make(map[string]settledReservation),
	}
}

// activeAccount valida existência e estado da conta antes de qualquer mutação
func (s *Service) activeAccount(accountID string) (Account, error) {
	acc, err := s.accounts.Get(accountID)
	if err != nil {
		return Account{}, err
	}
	if !acc.Active {
		return Account{}, ErrAccountInactive
	}
	return acc, nil
}

// Deposit credita a conta. Sem gate de KYC.
func (s *Service) Deposit(ctx context.Context, accountID string, amountCents int64) (ledger.Entry, error) {
	if amountCents <= 0 {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if _, err := s.activeAccount(accountID); err != nil {
		return ledger.Entry{}, err
	}
	return s.ledger.Append(ctx, accountID, ledger.KindDeposit, amountCents, "")
}

// Withdraw debita a conta; exige KYC nível 2. A checagem de fundos é do
// ledger, atômica com o lançamento.
func (s *Service) Withdraw(ctx context.Context, accountID string, amountCents int64) (ledger.Entry, error) {
	if amountCents <= 0 {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if _, err := s.activeAccount(accountID); err != nil {
		return ledger.Entry{}, err
	}
	level, err := s.kyc.Level(accountID)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("kyc lookup: %w", err)
	}
	if level < 2 {
		return ledger.Entry{}, ErrKYCRequired
	}
	return s.ledger.Append(ctx, accountID, ledger.KindWithdraw, -amountCents, "")
}

// Balance retorna saldo corrente e moeda da conta
func (s *Service) Balance(accountID string) (int64, string, error) {
	acc, err := s.accounts.Get(accountID)
	if err != nil {
		return 0, "", err
	}
	bal, err := s.ledger.Balance(accountID)
	if err != nil {
		return 0, "", err
	}
	return bal, acc.Currency, nil
}

// ReserveForBet debita o stake via BET_RESERVE. A reserva é irreversível no
// ledger: desfazer exige um BET_VOID compensatório, nunca um delete.
func (s *Service) ReserveForBet(ctx context.Context, accountID string, stakeCents int64, betID string) (ReservationToken, error) {
	if stakeCents <= 0 {
		return ReservationToken{}, ErrInvalidAmount
	}
	if _, err := s.activeAccount(accountID); err != nil {
		return ReservationToken{}, err
	}

	s.mu.Lock()
	if _, ok := s.reservations[betID]; ok {
		s.mu.Unlock()
		return ReservationToken{}, ErrDuplicateReservation
	}
	s.mu.Unlock()

	e, err := s.ledger.Append(ctx, accountID, ledger.KindBetReserve, -stakeCents, betID)
	if err != nil {
		return ReservationToken{}, err
	}

	tok := ReservationToken{BetID: betID, AccountID: accountID, StakeCents: stakeCents, EntryID: e.ID}
	s.mu.Lock()
	s.reservations[betID] = &reservation{token: tok, reserve: e}
	s.mu.Unlock()
	return tok, nil
}

// SettleReservation liquida uma reserva. Idempotente por aposta: repetir a
// mesma liquidação devolve o resultado anterior sem novo crédito; repetir
// com payout divergente é violação de invariante e congela a conta. A
// reserva viva é descartada após o desfecho terminal; fica só o registro
// compacto de idempotência.
func (s *Service) SettleReservation(ctx context.Context, token ReservationToken, outcome Outcome, payoutCents int64) (ledger.Entry, error) {
	s.mu.Lock()
	if rec, ok := s.settled[token.BetID]; ok {
		s.mu.Unlock()
		if rec.outcome == outcome && rec.payout == payoutCents {
			return rec.result, nil
		}
		s.ledger.Freeze(token.AccountID, fmt.Sprintf(
			"bet %s settled twice with divergent outcome/payout: %s/%d then %s/%d",
			token.BetID, rec.outcome, rec.payout, outcome, payoutCents))
		return ledger.Entry{}, ErrSettlementMismatch
	}
	res, ok := s.reservations[token.BetID]
	s.mu.Unlock()
	if !ok {
		return ledger.Entry{}, ErrUnknownReservation
	}

	res.settleMu.Lock()
	defer res.settleMu.Unlock()

	if res.settled {
		if res.outcome == outcome && res.payout == payoutCents {
			return res.result, nil
		}
		s.ledger.Freeze(token.AccountID, fmt.Sprintf(
			"bet %s settled twice with divergent outcome/payout: %s/%d then %s/%d",
			token.BetID, res.outcome, res.payout, outcome, payoutCents))
		return ledger.Entry{}, ErrSettlementMismatch
	}

	var (
		result ledger.Entry
		err    error
	)
	switch outcome {
	case OutcomeWon:
		result, err = s.ledger.Append(ctx, token.AccountID, ledger.KindBetSettleWin, payoutCents, token.BetID)
	case OutcomeLost:
		// stake já debitado na reserva; nenhum lançamento adicional
		result = res.reserve
	case OutcomeVoid:
		result, err = s.ledger.Append(ctx, token.AccountID, ledger.KindBetVoid, token.StakeCents, token.BetID)
	default:
		return ledger.Entry{}, fmt.Errorf("invalid outcome %q", outcome)
	}
	if err != nil {
		return ledger.Entry{}, err
	}

	res.settled = true
	res.outcome = outcome
	res.payout = payoutCents
	res.result = result

	s.mu.Lock()
	delete(s.reservations, token.BetID)
	s.settled[token.BetID] = settledReservation{outcome: outcome, payout: payoutCents, result: result}
	s.mu.Unlock()
	return result, nil
}

// RestoreReservation reanexa no boot uma reserva reconstruída do journal e
// do arquivo de apostas; não toca o ledger, que já contém o BET_RESERVE.
func (s *Service) RestoreReservation(token ReservationToken, reserve ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[token.BetID]; ok {
		return ErrDuplicateReservation
	}
	if _, ok := s.settled[token.BetID]; ok {
		return ErrDuplicateReservation
	}
	s.reservations[token.BetID] = &reservation{token: token, reserve: reserve}
	return nil
}

// VerifyActive confirma que a conta existe e está ativa
func (s *Service) VerifyActive(accountID string) error {
	_, err := s.activeAccount(accountID)
	return err
}

// RecordBonusGrant anexa o marcador de auditoria BONUS_GRANT (valor zero)
func (s *Service) RecordBonusGrant(ctx context.Context, accountID string) error {
	_, err := s.ledger.Append(ctx, accountID, ledger.KindBonusGrant, 0, "")
	return err
}

// ReleaseBonus credita um bônus completado como saldo real
func (s *Service) ReleaseBonus(ctx context.Context, accountID string, amountCents int64) (ledger.Entry, error) {
	if amountCents <= 0 {
		return ledger.Entry{}, ErrInvalidAmount
	}
	if _, err := s.activeAccount(accountID); err != nil {
		return ledger.Entry{}, err
	}
	return s.ledger.Append(ctx, accountID, ledger.KindBonusRelease, amountCents, "")
}

// History expõe a sequência de lançamentos da conta (auditoria)
func (s *Service) History(accountID string) ([]ledger.Entry, error) {
	return s.ledger.History(accountID)
}
