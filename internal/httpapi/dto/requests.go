package dto

type CreateAccountRequest struct {
	AccountID  string `json:"account_id,omitempty"` // opcional; gerado se ausente
	Currency   string `json:"currency,omitempty"`
	ReferrerID string `json:"referrer_id,omitempty"` // código de indicação aplicado no registro
}

type SetKYCRequest struct {
	Level int `json:"level"`
}

type DepositRequest struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
}

type WithdrawRequest struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
}

type PlaceBetRequest struct {
	AccountID  string `json:"account_id"`
	MatchID    string `json:"match_id"`
	Selection  string `json:"selection"`
	StakeCents int64  `json:"stake_cents"`
}

type SettleBetRequest struct {
	Outcome string `json:"outcome"` // WON | LOST | VOID
	Reason  string `json:"reason,omitempty"`
}

type ClaimBonusRequest struct {
	AccountID string `json:"account_id"`
	Type      string `json:"type"`
}
