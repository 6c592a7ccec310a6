package dto

type AccountResponse struct {
	AccountID string `json:"account_id"`
	KYCLevel  int    `json:"kyc_level"`
	Currency  string `json:"currency"`
	Active    bool   `json:"active"`
}

type BalanceResponse struct {
	AccountID    string `json:"account_id"`
	BalanceCents int64  `json:"balance_cents"`
	Currency     string `json:"currency"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
