package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/ledger"
)

func newTestService(t *testing.T) (*Service, *ledger.Store) {
	t.Helper()
	store := ledger.NewStore(zap.NewNop(), nil)
	reg := NewRegistry(store)
	_, err := reg.Register("acc-1", "INR")
	require.NoError(t, err)
	return NewService(store, reg, reg, zap.NewNop()), store
}

func TestDepositAndBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Deposit(ctx, "acc-1", 100_000)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindDeposit, e.Kind)

	bal, cur, err := svc.Balance("acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), bal)
	assert.Equal(t, "INR", cur)

	_, err = svc.Deposit(ctx, "acc-1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Deposit(ctx, "ghost", 100)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestWithdrawRequiresKYCLevel2(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)

	_, err := svc.Withdraw(ctx, "acc-1", 10_000)
	assert.ErrorIs(t, err, ErrKYCRequired)

	require.NoError(t, svc.accounts.SetKYCLevel("acc-1", 2))
	e, err := svc.Withdraw(ctx, "acc-1", 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), e.BalanceAfterCents)
}

// Cenário da spec: dois saques concorrentes de 600 sobre saldo 1000 —
// exatamente um passa, o outro falha por fundos insuficientes.
func TestConcurrentWithdrawExactlyOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)
	require.NoError(t, svc.accounts.SetKYCLevel("acc-1", 2))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Withdraw(ctx, "acc-1", 60_000)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 1, ok)

	bal, _, _ := svc.Balance("acc-1")
	assert.Equal(t, int64(40_000), bal)
}

func TestReserveAndSettleWon(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)

	tok, err := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), tok.StakeCents)

	bal, _, _ := svc.Balance("acc-1")
	assert.Equal(t, int64(80_000), bal)

	e, err := svc.SettleReservation(ctx, tok, OutcomeWon, 37_000)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindBetSettleWin, e.Kind)

	bal, _, _ = svc.Balance("acc-1")
	assert.Equal(t, int64(117_000), bal)
}

func TestSettleIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)
	tok, _ := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")

	first, err := svc.SettleReservation(ctx, tok, OutcomeWon, 37_000)
	require.NoError(t, err)

	// retry legítimo: mesmo resultado, nenhum crédito novo
	second, err := svc.SettleReservation(ctx, tok, OutcomeWon, 37_000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bal, _, _ := svc.Balance("acc-1")
	assert.Equal(t, int64(117_000), bal)
}

func TestSettleMismatchFreezesAccount(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)
	tok, _ := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")

	_, err := svc.SettleReservation(ctx, tok, OutcomeWon, 37_000)
	require.NoError(t, err)

	_, err = svc.SettleReservation(ctx, tok, OutcomeWon, 99_000)
	assert.ErrorIs(t, err, ErrSettlementMismatch)
	assert.True(t, store.Frozen("acc-1"))

	_, err = svc.Deposit(ctx, "acc-1", 1_000)
	assert.ErrorIs(t, err, ledger.ErrAccountFrozen)
}

func TestSettleLostAppendsNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)
	tok, _ := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")

	e, err := svc.SettleReservation(ctx, tok, OutcomeLost, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindBetReserve, e.Kind) // devolve o lançamento da reserva

	hist, _ := svc.History("acc-1")
	assert.Len(t, hist, 2) // deposit + reserve, nada de settle

	bal, _, _ := svc.Balance("acc-1")
	assert.Equal(t, int64(80_000), bal)
}

func TestSettleVoidRestoresStake(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)
	tok, _ := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")

	_, err := svc.SettleReservation(ctx, tok, OutcomeVoid, 0)
	require.NoError(t, err)

	bal, _, _ := svc.Balance("acc-1")
	assert.Equal(t, int64(100_000), bal)
}

func TestReserveInsufficientFunds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 10_000)

	_, err := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// reserva rejeitada não registra token
	_, err = svc.SettleReservation(ctx, ReservationToken{BetID: "bet-1", AccountID: "acc-1"}, OutcomeVoid, 0)
	assert.ErrorIs(t, err, ErrUnknownReservation)
}

func TestDeactivatedAccountRejectsMutation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 10_000)
	require.NoError(t, svc.accounts.Deactivate("acc-1"))

	_, err := svc.Deposit(ctx, "acc-1", 1_000)
	assert.ErrorIs(t, err, ErrAccountInactive)
	_, err = svc.ReserveForBet(ctx, "acc-1", 1_000, "bet-2")
	assert.ErrorIs(t, err, ErrAccountInactive)
}

// Liquidação terminal descarta a reserva viva; sobra só o registro compacto
// de idempotência, que ainda responde retries e detecta divergência.
func TestSettledReservationsArePruned(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)

	var last ReservationToken
	for i := 0; i < 20; i++ {
		tok, err := svc.ReserveForBet(ctx, "acc-1", 1_000, fmt.Sprintf("bet-%d", i))
		require.NoError(t, err)
		_, err = svc.SettleReservation(ctx, tok, OutcomeLost, 0)
		require.NoError(t, err)
		last = tok
	}

	svc.mu.Lock()
	live, terminal := len(svc.reservations), len(svc.settled)
	svc.mu.Unlock()
	assert.Equal(t, 0, live)
	assert.Equal(t, 20, terminal)

	// retry depois do descarte continua idempotente
	e, err := svc.SettleReservation(ctx, last, OutcomeLost, 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindBetReserve, e.Kind)

	// e divergência continua congelando a conta
	_, err = svc.SettleReservation(ctx, last, OutcomeWon, 9_000)
	assert.ErrorIs(t, err, ErrSettlementMismatch)
	assert.True(t, store.Frozen("acc-1"))
}

// Reserva restaurada do journal liquida normalmente, sem novo débito
func TestRestoredReservationSettles(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)

	tok, err := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")
	require.NoError(t, err)
	hist, err := svc.History("acc-1")
	require.NoError(t, err)

	// processo novo: conta volta do journal, reserva é reanexada
	store2 := ledger.NewStore(zap.NewNop(), nil)
	require.NoError(t, store2.Restore("acc-1", hist))
	reg2 := NewRegistry(store2)
	reg2.Attach("acc-1", "INR", 0)
	svc2 := NewService(store2, reg2, reg2, zap.NewNop())
	require.NoError(t, svc2.RestoreReservation(tok, hist[len(hist)-1]))

	e, err := svc2.SettleReservation(ctx, tok, OutcomeWon, 37_000)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindBetSettleWin, e.Kind)

	bal, _, _ := svc2.Balance("acc-1")
	assert.Equal(t, int64(117_000), bal)
}

func TestRestoreReservationRejectsKnownBet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Deposit(ctx, "acc-1", 100_000)
	tok, _ := svc.ReserveForBet(ctx, "acc-1", 20_000, "bet-1")

	assert.ErrorIs(t, svc.RestoreReservation(tok, ledger.Entry{}), ErrDuplicateReservation)

	_, err := svc.SettleReservation(ctx, tok, OutcomeVoid, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RestoreReservation(tok, ledger.Entry{}), ErrDuplicateReservation)
}

func TestBonusReleaseCreditsBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordBonusGrant(ctx, "acc-1"))
	e, err := svc.ReleaseBonus(ctx, "acc-1", 10_000)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindBonusRelease, e.Kind)

	bal, _, _ := svc.Balance("acc-1")
	assert.Equal(t, int64(10_000), bal)
}
