package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-core-engine/internal/bet"
	"github.com/radieske/bet-core-engine/internal/bonus"
	"github.com/radieske/bet-core-engine/internal/httpapi/dto"
	"github.com/radieske/bet-core-engine/internal/ledger"
	"github.com/radieske/bet-core-engine/internal/oddsfeed"
	"github.com/radieske/bet-core-engine/internal/wallet"
)

// Server expõe a API REST do core: contas, carteira, partidas, apostas e
// bônus. A autenticação fica no gateway/provedor de identidade; aqui só
// chegam account_ids já resolvidos.
type Server struct {
	log      *zap.Logger
	registry *wallet.Registry
	wallet   *wallet.Service
	feed     *oddsfeed.Feed
	engine   *bet.Engine
	bonuses  *bonus.Service
	ws       http.HandlerFunc // opcional
	currency string
}

func NewServer(log *zap.Logger, reg *wallet.Registry, w *wallet.Service, f *oddsfeed.Feed, e *bet.Engine, b *bonus.Service, currency string) *Server {
	return &Server{
		log:      log,
		registry: reg,
		wallet:   w,
		feed:     f,
		engine:   e,
		bonuses:  b,
		currency: currency,
	}
}

// WithWebSocket liga o handler de stream de odds em GET /v1/ws
func (s *Server) WithWebSocket(h http.HandlerFunc) *Server { s.ws = h; return s }

// Router retorna o roteador HTTP com as rotas da API do core
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/v1/accounts", s.createAccount)
	r.Post("/v1/accounts/{id}/kyc", s.setKYC) // operação interna de aprovação

	r.Post("/v1/wallet/deposit", s.deposit)
	r.Post("/v1/wallet/withdraw", s.withdraw)
	r.Get("/v1/wallet/balance", s.balance)   // ?accountId=...
	r.Get("/v1/wallet/history", s.history)   // ?accountId=...

	r.Get("/v1/matches", s.listMatches)

	r.Post("/v1/bets", s.placeBet)
	r.Get("/v1/bets", s.listBets) // ?accountId=...
	r.Get("/v1/bets/{id}", s.getBet)
	r.Post("/v1/bets/{id}/settle", s.settleBet) // colaborador interno de resultados

	r.Get("/v1/bonuses", s.listBonuses) // ?accountId=...
	r.Post("/v1/bonuses/claim", s.claimBonus)

	if s.ws != nil {
		r.Get("/v1/ws", s.ws)
	}
	return r
}

// createAccount é o hook de registro do provedor de identidade externo.
// Um referrer_id presente concede o bônus de indicação ao referrer.
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.AccountID == "" {
		req.AccountID = uuid.NewString()
	}
	if req.Currency == "" {
		req.Currency = s.currency
	}

	acc, err := s.registry.Register(req.AccountID, req.Currency)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	if req.ReferrerID != "" {
		if _, rerr := s.registry.Get(req.ReferrerID); rerr == nil {
			if _, gerr := s.bonuses.GrantReferral(r.Context(), req.ReferrerID); gerr != nil {
				s.log.Warn("referral grant failed", zap.String("referrer_id", req.ReferrerID), zap.Error(gerr))
			}
		} else {
			s.log.Warn("referral code does not match any account", zap.String("referrer_id", req.ReferrerID))
		}
	}

	writeJSON(w, http.StatusCreated, dto.AccountResponse{
		AccountID: acc.ID, KYCLevel: acc.KYCLevel, Currency: acc.Currency, Active: acc.Active,
	})
}

func (s *Server) setKYC(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.SetKYCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := s.registry.SetKYCLevel(id, req.Level); err != nil {
		writeDomainErr(w, err)
		return
	}
	acc, _ := s.registry.Get(id)
	writeJSON(w, http.StatusOK, dto.AccountResponse{
		AccountID: acc.ID, KYCLevel: acc.KYCLevel, Currency: acc.Currency, Active: acc.Active,
	})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.AccountID == "" {
		writeErr(w, http.StatusBadRequest, "account_id required")
		return
	}
	entry, err := s.wallet.Deposit(r.Context(), req.AccountID, req.AmountCents)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		AccountID: req.AccountID, BalanceCents: entry.BalanceAfterCents, Currency: s.currencyOf(req.AccountID),
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.AccountID == "" {
		writeErr(w, http.StatusBadRequest, "account_id required")
		return
	}
	entry, err := s.wallet.Withdraw(r.Context(), req.AccountID, req.AmountCents)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		AccountID: req.AccountID, BalanceCents: entry.BalanceAfterCents, Currency: s.currencyOf(req.AccountID),
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeErr(w, http.StatusBadRequest, "accountId required")
		return
	}
	bal, cur, err := s.wallet.Balance(accountID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: accountID, BalanceCents: bal, Currency: cur})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeErr(w, http.StatusBadRequest, "accountId required")
		return
	}
	entries, err := s.wallet.History(accountID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.List())
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.AccountID == "" || req.MatchID == "" || req.Selection == "" {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, err := s.engine.Place(r.Context(), req.AccountID, req.MatchID, req.Selection, req.StakeCents)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeErr(w, http.StatusBadRequest, "accountId required")
		return
	}
	bets := s.engine.ListByAccount(accountID)
	if bets == nil {
		bets = []bet.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// settleBet liquida (ou anula) uma aposta. Retry de uma liquidação já
// aplicada devolve 200 com o estado corrente, não um erro.
func (s *Server) settleBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.SettleBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}

	var (
		b   bet.Bet
		err error
	)
	switch req.Outcome {
	case string(bet.StateWon), string(bet.StateLost):
		b, err = s.engine.Settle(r.Context(), id, bet.State(req.Outcome))
	case string(bet.StateVoid):
		b, err = s.engine.Void(r.Context(), id, req.Reason)
	default:
		writeErr(w, http.StatusBadRequest, "outcome must be WON, LOST or VOID")
		return
	}
	if errors.Is(err, bet.ErrAlreadySettled) {
		writeJSON(w, http.StatusOK, b)
		return
	}
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listBonuses(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeErr(w, http.StatusBadRequest, "accountId required")
		return
	}
	writeJSON(w, http.StatusOK, s.bonuses.List(accountID))
}

func (s *Server) claimBonus(w http.ResponseWriter, r *http.Request) {
	var req dto.ClaimBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.AccountID == "" || req.Type == "" {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if _, err := s.registry.Get(req.AccountID); err != nil {
		writeDomainErr(w, err)
		return
	}
	g, err := s.bonuses.Claim(r.Context(), req.AccountID, bonus.Type(req.Type))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) currencyOf(accountID string) string {
	if acc, err := s.registry.Get(accountID); err == nil {
		return acc.Currency
	}
	return s.currency
}

// writeDomainErr traduz erros de domínio para status HTTP
func writeDomainErr(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, bet.ErrBetNotFound),
		errors.Is(err, oddsfeed.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAccountExists),
		errors.Is(err, ledger.ErrAccountFrozen),
		errors.Is(err, wallet.ErrKYCRequired),
		errors.Is(err, wallet.ErrAccountInactive),
		errors.Is(err, bet.ErrMatchNotLive),
		errors.Is(err, oddsfeed.ErrMatchClosed),
		errors.Is(err, bonus.ErrAlreadyClaimed),
		errors.Is(err, bonus.ErrNotEligible):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidKYCLevel),
		errors.Is(err, bet.ErrInvalidStake),
		errors.Is(err, bet.ErrSelectionUnknown):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
