package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifica o tipo de lançamento no ledger
type Kind string

const (
	KindDeposit       Kind = "DEPOSIT"
	KindWithdraw      Kind = "WITHDRAW"
	KindBetReserve    Kind = "BET_RESERVE"
	KindBetSettleWin  Kind = "BET_SETTLE_WIN"
	KindBetSettleLoss Kind = "BET_SETTLE_LOSS"
	KindBetVoid       Kind = "BET_VOID"
	KindBonusGrant    Kind = "BONUS_GRANT"
	KindBonusRelease  Kind = "BONUS_RELEASE"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountFrozen     = errors.New("account frozen")
	ErrInvalidAmount     = errors.New("invalid amount for entry kind")
)

// Entry é um lançamento imutável do ledger. Valores em centavos, assinados.
// Seq é monotônico por conta; BalanceAfterCents nunca é negativo.
type Entry struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	Seq               int64     `json:"seq"`
	Kind              Kind      `json:"kind"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	RelatedBetID      string    `json:"related_bet_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// validAmount confere o sinal do valor contra o tipo do lançamento.
// BONUS_GRANT é marcador de auditoria com valor zero: o saldo real só é
// creditado no BONUS_RELEASE correspondente.
func validAmount(kind Kind, amount int64) bool {
	switch kind {
	case KindWithdraw, KindBetReserve:
		return amount < 0
	case KindDeposit, KindBetSettleWin, KindBetVoid, KindBonusRelease:
		return amount > 0
	case KindBetSettleLoss, KindBonusGrant:
		return amount == 0
	}
	return false
}

// Replay refaz o fold de uma sequência de lançamentos de UMA conta,
// validando encadeamento de seq e de balance_after. Retorna o saldo final.
func Replay(entries []Entry) (int64, error) {
	var balance int64
	var lastSeq int64
	for i, e := range entries {
		if e.Seq != lastSeq+1 {
			return 0, fmt.Errorf("entry %d: seq %d after %d", i, e.Seq, lastSeq)
		}
		balance += e.AmountCents
		if balance != e.BalanceAfterCents {
			return 0, fmt.Errorf("entry %d (%s): computed balance %d != recorded %d", i, e.ID, balance, e.BalanceAfterCents)
		}
		if balance < 0 {
			return 0, fmt.Errorf("entry %d (%s): negative balance %d", i, e.ID, balance)
		}
		lastSeq = e.Seq
	}
	return balance, nil
}
