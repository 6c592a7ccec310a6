package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Journal é o destino durável dos lançamentos já aceitos (write-behind).
// O store em memória é a autoridade; o journal permite replay no boot.
type Journal interface {
	AppendEntry(ctx context.Context, e Entry) error
}

// Store mantém o ledger por conta: arena de registros indexada por id,
// cada um com seu próprio mutex. Todos os lançamentos de uma conta são
// linearizados (ler saldo → calcular → anexar é atômico); contas distintas
// nunca disputam o mesmo lock.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account

	journal Journal // opcional
	log     *zap.Logger

	// métricas (callbacks opcionais)
	OnAppend    func(kind string)
	OnReject    func(reason string)
	OnIntegrity func()
}

type account struct {
	mu      sync.Mutex
	id      string
	seq     int64
	balance int64
	entries []Entry
	frozen  bool
}

// NewStore cria o ledger vazio. journal pode ser nil (modo local/teste).
func NewStore(log *zap.Logger, journal Journal) *Store {
	return &Store{
		accounts: make(map[string]*account),
		journal:  journal,
		log:      log,
	}
}

// Open registra uma conta nova com saldo zero
func (s *Store) Open(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; ok {
		return ErrAccountExists
	}
	s.accounts[accountID] = &account{id: accountID}
	return nil
}

func (s *Store) lookup(accountID string) (*account, error) {
	s.mu.RLock()
	acc, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// Append anexa um lançamento, rejeitando qualquer saldo resultante negativo.
// Nenhum lançamento parcial é escrito em caso de erro.
func (s *Store) Append(ctx context.Context, accountID string, kind Kind, amountCents int64, relatedBetID string) (Entry, error) {
	if !validAmount(kind, amountCents) {
		s.reject("invalid_amount")
		return Entry{}, ErrInvalidAmount
	}

	acc, err := s.lookup(accountID)
	if err != nil {
		s.reject("account_not_found")
		return Entry{}, err
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.frozen {
		s.reject("account_frozen")
		return Entry{}, ErrAccountFrozen
	}

	newBalance := acc.balance + amountCents
	if newBalance < 0 {
		s.reject("insufficient_funds")
		return Entry{}, ErrInsufficientFunds
	}

	e := Entry{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Seq:               acc.seq + 1,
		Kind:              kind,
		AmountCents:       amountCents,
		BalanceAfterCents: newBalance,
		RelatedBetID:      relatedBetID,
		CreatedAt:         time.Now().UTC(),
	}

	acc.seq = e.Seq
	acc.balance = newBalance
	acc.entries = append(acc.entries, e)

	// Write-behind do journal ainda sob o lock da conta, preservando a
	// ordem por conta. Falha de journal não desfaz o lançamento aceito.
	if s.journal != nil {
		if jerr := s.journal.AppendEntry(ctx, e); jerr != nil {
			s.log.Error("ledger journal append failed",
				zap.String("account_id", accountID),
				zap.String("entry_id", e.ID),
				zap.Error(jerr),
			)
		}
	}

	if s.OnAppend != nil {
		s.OnAppend(string(kind))
	}
	return e, nil
}

// Balance retorna o saldo corrente, sempre igual ao balance_after do último
// lançamento aceito
func (s *Store) Balance(accountID string) (int64, error) {
	acc, err := s.lookup(accountID)
	if err != nil {
		return 0, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

// History retorna uma cópia da sequência de lançamentos da conta
func (s *Store) History(accountID string) ([]Entry, error) {
	acc, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	out := make([]Entry, len(acc.entries))
	copy(out, acc.entries)
	return out, nil
}

// Freeze congela a conta após violação de invariante: nenhuma mutação
// posterior é aceita até intervenção do operador.
func (s *Store) Freeze(accountID, reason string) {
	acc, err := s.lookup(accountID)
	if err != nil {
		return
	}
	acc.mu.Lock()
	acc.frozen = true
	acc.mu.Unlock()

	s.log.Error("LEDGER INTEGRITY VIOLATION: account frozen",
		zap.String("account_id", accountID),
		zap.String("reason", reason),
	)
	if s.OnIntegrity != nil {
		s.OnIntegrity()
	}
}

// Frozen informa se a conta está congelada
func (s *Store) Frozen(accountID string) bool {
	acc, err := s.lookup(accountID)
	if err != nil {
		return false
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.frozen
}

// Restore recarrega o estado de uma conta a partir do journal (boot),
// validando o fold completo antes de aceitar.
func (s *Store) Restore(accountID string, entries []Entry) error {
	balance, err := Replay(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; ok {
		return ErrAccountExists
	}
	acc := &account{id: accountID, balance: balance}
	if n := len(entries); n > 0 {
		acc.seq = entries[n-1].Seq
		acc.entries = append(acc.entries, entries...)
	}
	s.accounts[accountID] = acc
	return nil
}

func (s *Store) reject(reason string) {
	if s.OnReject != nil {
		s.OnReject(reason)
	}
}
