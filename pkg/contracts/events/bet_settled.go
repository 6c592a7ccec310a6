package events

import "time"

// Evento emitido pelo core após liquidar uma aposta.
type BetSettled struct {
	BetID       string    `json:"bet_id"`
	AccountID   string    `json:"account_id"`
	MatchID     string    `json:"match_id"`
	Outcome     string    `json:"outcome"` // "WON" | "LOST" | "VOID"
	PayoutCents int64     `json:"payout_cents"`
	Ts          time.Time `json:"ts"`
}
