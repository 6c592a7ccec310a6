package events

import "time"

// Evento do tópico "match_results": resultado final de uma partida.
// Entrega at-least-once; o consumidor precisa tolerar retries.
type MatchResult struct {
	MatchID          string    `json:"match_id"`
	WinningSelection string    `json:"winning_selection"` // vazio quando Cancelled
	Cancelled        bool      `json:"cancelled"`
	Reason           string    `json:"reason,omitempty"`
	Source           string    `json:"source"`
	Ts               time.Time `json:"ts"`
}
