package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(zap.NewNop(), nil)
	require.NoError(t, s.Open("acc-1"))
	return s
}

func TestAppendComputesBalanceAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1, err := s.Append(ctx, "acc-1", KindDeposit, 100_000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, int64(100_000), e1.BalanceAfterCents)

	e2, err := s.Append(ctx, "acc-1", KindWithdraw, -40_000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Seq)
	assert.Equal(t, int64(60_000), e2.BalanceAfterCents)

	bal, err := s.Balance("acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), bal)
}

func TestAppendRejectsNegativeBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "acc-1", KindDeposit, 50_000, "")
	require.NoError(t, err)

	_, err = s.Append(ctx, "acc-1", KindWithdraw, -60_000, "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// rejeição não escreve lançamento parcial
	hist, err := s.History("acc-1")
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	bal, _ := s.Balance("acc-1")
	assert.Equal(t, int64(50_000), bal)
}

func TestAppendValidatesKindSign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "acc-1", KindDeposit, -100, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.Append(ctx, "acc-1", KindBetReserve, 100, "bet-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.Append(ctx, "acc-1", KindBonusGrant, 5, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAppendUnknownAccount(t *testing.T) {
	s := NewStore(zap.NewNop(), nil)
	_, err := s.Append(context.Background(), "ghost", KindDeposit, 100, "")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

// Dois débitos concorrentes não podem ambos passar quando o saldo só
// comporta um: a linearização por conta garante exatamente um sucesso.
func TestConcurrentDebitsExactlyOneSucceeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "acc-1", KindDeposit, 100_000, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Append(ctx, "acc-1", KindWithdraw, -60_000, "")
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrInsufficientFunds):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	bal, _ := s.Balance("acc-1")
	assert.Equal(t, int64(40_000), bal)
}

// Propriedade de auditoria: o fold da história reproduz o saldo final.
func TestHistoryFoldReproducesBalance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	amounts := []struct {
		kind   Kind
		amount int64
	}{
		{KindDeposit, 100_000},
		{KindBetReserve, -20_000},
		{KindBetSettleWin, 37_000},
		{KindWithdraw, -50_000},
		{KindBonusRelease, 10_000},
	}
	for _, a := range amounts {
		_, err := s.Append(ctx, "acc-1", a.kind, a.amount, "")
		require.NoError(t, err)
	}

	hist, err := s.History("acc-1")
	require.NoError(t, err)

	folded, err := Replay(hist)
	require.NoError(t, err)

	bal, _ := s.Balance("acc-1")
	assert.Equal(t, bal, folded)
	assert.Equal(t, int64(77_000), folded)
}

func TestRestoreFromJournalEntries(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()
	_, _ = src.Append(ctx, "acc-1", KindDeposit, 80_000, "")
	_, _ = src.Append(ctx, "acc-1", KindBetReserve, -30_000, "bet-9")
	hist, _ := src.History("acc-1")

	dst := NewStore(zap.NewNop(), nil)
	require.NoError(t, dst.Restore("acc-1", hist))

	bal, err := dst.Balance("acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), bal)

	// a sequência continua de onde parou
	e, err := dst.Append(ctx, "acc-1", KindDeposit, 1_000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Seq)
}

func TestRestoreRejectsCorruptedChain(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()
	_, _ = src.Append(ctx, "acc-1", KindDeposit, 10_000, "")
	_, _ = src.Append(ctx, "acc-1", KindDeposit, 5_000, "")
	hist, _ := src.History("acc-1")
	hist[1].BalanceAfterCents = 99_999 // adultera o encadeamento

	dst := NewStore(zap.NewNop(), nil)
	assert.Error(t, dst.Restore("acc-1", hist))
}

func TestFreezeHaltsMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _ = s.Append(ctx, "acc-1", KindDeposit, 10_000, "")

	violations := 0
	s.OnIntegrity = func() { violations++ }
	s.Freeze("acc-1", "duplicate settlement with different payout")

	assert.True(t, s.Frozen("acc-1"))
	assert.Equal(t, 1, violations)

	_, err := s.Append(ctx, "acc-1", KindDeposit, 10_000, "")
	assert.ErrorIs(t, err, ErrAccountFrozen)

	// leitura continua permitida
	bal, err := s.Balance("acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), bal)
}
