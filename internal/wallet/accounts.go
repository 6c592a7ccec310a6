package wallet

import (
	"errors"
	"sync"
	"time"

	"github.com/radieske/bet-core-engine/internal/ledger"
)

var (
	ErrAccountInactive = errors.New("account deactivated")
	ErrInvalidKYCLevel = errors.New("kyc level out of range")
)

// Account é a identidade da carteira de um usuário. Criada no registro
// (disparado pelo provedor de identidade externo), nunca apagada, apenas
// desativada.
type Account struct {
	ID        string    `json:"id"`
	KYCLevel  int       `json:"kyc_level"` // 0..2
	Currency  string    `json:"currency"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry guarda as contas conhecidas e abre o registro correspondente
// no ledger. Também atende como provedor de KYC (nível por conta).
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	ledger   *ledger.Store
}

func NewRegistry(store *ledger.Store) *Registry {
	return &Registry{accounts: make(map[string]*Account), ledger: store}
}

// Register cria a conta e o registro de ledger com saldo zero
func (r *Registry) Register(accountID, currency string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountID]; ok {
		return Account{}, ledger.ErrAccountExists
	}
	if err := r.ledger.Open(accountID); err != nil {
		return Account{}, err
	}
	acc := &Account{
		ID:        accountID,
		KYCLevel:  0,
		Currency:  currency,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	r.accounts[accountID] = acc
	return *acc, nil
}

// Attach registra os metadados de uma conta restaurada do journal
func (r *Registry) Attach(accountID, currency string, kycLevel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountID]; ok {
		return
	}
	r.accounts[accountID] = &Account{
		ID:        accountID,
		KYCLevel:  kycLevel,
		Currency:  currency,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func (r *Registry) Get(accountID string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return Account{}, ledger.ErrAccountNotFound
	}
	return *acc, nil
}

// SetKYCLevel é a operação interna de aprovação de KYC (0..2).
// O armazenamento de documentos fica fora do core.
func (r *Registry) SetKYCLevel(accountID string, level int) error {
	if level < 0 || level > 2 {
		return ErrInvalidKYCLevel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	acc.KYCLevel = level
	return nil
}

// Deactivate desliga a conta sem apagar histórico
func (r *Registry) Deactivate(accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	acc.Active = false
	return nil
}

// Level implementa KYCProvider consultando o registro local
func (r *Registry) Level(accountID string) (int, error) {
	acc, err := r.Get(accountID)
	if err != nil {
		return 0, err
	}
	return acc.KYCLevel, nil
}
