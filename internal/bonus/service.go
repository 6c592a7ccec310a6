package bonus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/ledger"
)

var (
	ErrAlreadyClaimed = errors.New("bonus already claimed")
	ErrNotEligible    = errors.New("not eligible for bonus type")
)

// Type dos bônus oferecidos
type Type string

const (
	TypeWelcome  Type = "WELCOME"
	TypeDaily    Type = "DAILY"
	TypeReferral Type = "REFERRAL"
)

// Status de um grant de bônus
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Grant acompanha um bônus concedido e o progresso de wagering até a
// liberação. Mutado apenas pelo bonus accounting.
type Grant struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	Type             Type      `json:"type"`
	AmountCents      int64     `json:"amount_cents"`
	WageringReqCents int64     `json:"wagering_requirement_cents"`
	WageredCents     int64     `json:"wagered_cents"`
	Status           Status    `json:"status"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`

	releasing bool // crédito em andamento; impede liberação dupla concorrente
}

// Catálogo de bônus: valores e multiplicadores de wagering do produto
// original (WELCOME ₹100 5x, DAILY ₹20 3x, REFERRAL ₹50 5x), 7 dias de
// validade.
type offer struct {
	amountCents int64
	multiplier  int64
	validity    time.Duration
}

var catalog = map[Type]offer{
	TypeWelcome:  {amountCents: 10_000, multiplier: 5, validity: 7 * 24 * time.Hour},
	TypeDaily:    {amountCents: 2_000, multiplier: 3, validity: 7 * 24 * time.Hour},
	TypeReferral: {amountCents: 5_000, multiplier: 5, validity: 7 * 24 * time.Hour},
}

// Releaser é o contrato com a carteira: validação da conta, marcador de
// grant e crédito da liberação
type Releaser interface {
	VerifyActive(accountID string) error
	RecordBonusGrant(ctx context.Context, accountID string) error
	ReleaseBonus(ctx context.Context, accountID string, amountCents int64) (ledger.Entry, error)
}

// Archive persiste grants em banco (write-behind, melhor esforço)
type Archive interface {
	InsertGrant(ctx context.Context, g Grant) error
	UpdateGrant(ctx context.Context, g Grant) error
}

// Service acompanha grants e progresso de wagering por conta. Observa os
// stakes aceitos pelo engine e pede a liberação à carteira quando o
// requisito é atingido — exatamente uma vez por grant.
type Service struct {
	wallet  Releaser
	archive Archive // opcional
	log     *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	grants map[string][]*Grant // por conta

	// métricas (callback opcional)
	OnRelease func()
}

func NewService(w Releaser, log *zap.Logger) *Service {
	return &Service{
		wallet: w,
		log:    log,
		now:    time.Now,
		grants: make(map[string][]*Grant),
	}
}

// WithArchive liga a persistência write-behind de grants
func (s *Service) WithArchive(a Archive) *Service { s.archive = a; return s }

// Claim concede um bônus do catálogo. Um claim por tipo por conta;
// REFERRAL não é reivindicável pelo usuário (concedido via código).
func (s *Service) Claim(ctx context.Context, accountID string, typ Type) (Grant, error) {
	if typ == TypeReferral {
		return Grant{}, ErrNotEligible
	}
	off, ok := catalog[typ]
	if !ok {
		return Grant{}, ErrNotEligible
	}
	if err := s.wallet.VerifyActive(accountID); err != nil {
		return Grant{}, err
	}

	s.mu.Lock()
	for _, g := range s.grants[accountID] {
		if g.Type == typ {
			s.mu.Unlock()
			return Grant{}, ErrAlreadyClaimed
		}
	}
	g := s.newGrantLocked(accountID, typ, off)
	s.mu.Unlock()

	s.recordGrant(ctx, accountID, g)
	return *g, nil
}

// GrantReferral concede o bônus de indicação ao referrer quando uma conta
// indicada se registra
func (s *Service) GrantReferral(ctx context.Context, referrerID string) (Grant, error) {
	off := catalog[TypeReferral]
	if err := s.wallet.VerifyActive(referrerID); err != nil {
		return Grant{}, err
	}

	s.mu.Lock()
	g := s.newGrantLocked(referrerID, TypeReferral, off)
	s.mu.Unlock()

	s.recordGrant(ctx, referrerID, g)
	return *g, nil
}

func (s *Service) newGrantLocked(accountID string, typ Type, off offer) *Grant {
	now := s.now().UTC()
	g := &Grant{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Type:             typ,
		AmountCents:      off.amountCents,
		WageringReqCents: off.amountCents * off.multiplier,
		Status:           StatusActive,
		ExpiresAt:        now.Add(off.validity),
		CreatedAt:        now,
	}
	s.grants[accountID] = append(s.grants[accountID], g)
	return g
}

func (s *Service) recordGrant(ctx context.Context, accountID string, g *Grant) {
	if err := s.wallet.RecordBonusGrant(ctx, accountID); err != nil {
		s.log.Warn("bonus grant ledger marker failed",
			zap.String("account_id", accountID), zap.String("grant_id", g.ID), zap.Error(err))
	}
	if s.archive != nil {
		if err := s.archive.InsertGrant(ctx, *g); err != nil {
			s.log.Warn("bonus archive insert failed", zap.String("grant_id", g.ID), zap.Error(err))
		}
	}
}

// OnStake avança o progresso de wagering de todos os grants ATIVOS da
// conta pelo valor do stake, do vencimento mais próximo para o mais
// distante. Grant completo é liberado exatamente uma vez; o status só vira
// COMPLETED depois do crédito aceito — falha de crédito deixa o grant
// ATIVO e elegível para retry no próximo stake.
func (s *Service) OnStake(ctx context.Context, accountID string, stakeCents int64) {
	s.mu.Lock()
	s.expireLocked(accountID)

	active := make([]*Grant, 0, len(s.grants[accountID]))
	for _, g := range s.grants[accountID] {
		if g.Status == StatusActive {
			active = append(active, g)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ExpiresAt.Before(active[j].ExpiresAt) })

	var (
		toRelease  []*Grant
		progressed []Grant
	)
	for _, g := range active {
		g.WageredCents += stakeCents
		if g.WageredCents >= g.WageringReqCents && !g.releasing {
			g.releasing = true
			toRelease = append(toRelease, g)
			continue
		}
		progressed = append(progressed, *g)
	}
	s.mu.Unlock()

	for _, g := range toRelease {
		if _, err := s.wallet.ReleaseBonus(ctx, accountID, g.AmountCents); err != nil {
			s.log.Error("bonus release failed",
				zap.String("account_id", accountID), zap.String("grant_id", g.ID), zap.Error(err))
			s.mu.Lock()
			g.releasing = false
			snapshot := *g
			s.mu.Unlock()
			s.archiveGrant(ctx, snapshot)
			continue
		}
		s.mu.Lock()
		g.Status = StatusCompleted
		snapshot := *g
		s.mu.Unlock()

		if s.OnRelease != nil {
			s.OnRelease()
		}
		s.archiveGrant(ctx, snapshot)
		s.log.Info("bonus released",
			zap.String("account_id", accountID),
			zap.String("grant_id", g.ID),
			zap.Int64("amount_cents", g.AmountCents),
		)
	}

	// progresso parcial também vai para o arquivo; o boot restaura de onde
	// o último stake deixou
	for _, g := range progressed {
		s.archiveGrant(ctx, g)
	}
}

func (s *Service) archiveGrant(ctx context.Context, g Grant) {
	if s.archive == nil {
		return
	}
	if err := s.archive.UpdateGrant(ctx, g); err != nil {
		s.log.Warn("bonus archive update failed", zap.String("grant_id", g.ID), zap.Error(err))
	}
}

// Restore reanexa no boot os grants vindos do arquivo; progresso e status
// retomam de onde o último stake arquivado deixou.
func (s *Service) Restore(grants []Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range grants {
		gg := g
		s.grants[g.AccountID] = append(s.grants[g.AccountID], &gg)
	}
}

// List retorna os grants da conta (expirando os vencidos antes)
func (s *Service) List(accountID string) []Grant {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(accountID)

	out := make([]Grant, 0, len(s.grants[accountID]))
	for _, g := range s.grants[accountID] {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Sweep expira grants vencidos de todas as contas; roda em background no
// core-service
func (s *Service) Sweep(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for accountID := range s.grants {
		s.expireLocked(accountID)
	}
}

// expireLocked marca EXPIRED os grants ATIVOS vencidos; nunca são
// liberados depois, independente de progresso
func (s *Service) expireLocked(accountID string) {
	now := s.now().UTC()
	for _, g := range s.grants[accountID] {
		if g.Status == StatusActive && now.After(g.ExpiresAt) {
			g.Status = StatusExpired
		}
	}
}
