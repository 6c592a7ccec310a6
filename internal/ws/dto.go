package ws

import "github.com/radieske/bet-core-engine/internal/oddsfeed"

// ClientMsg é a mensagem de controle enviada pelo cliente WebSocket
type ClientMsg struct {
	Type    string `json:"type"` // subscribe | unsubscribe | ping
	MatchID string `json:"match_id,omitempty"`
}

// ServerMsg é a mensagem enviada ao cliente: delta de odds, pong ou erro
type ServerMsg struct {
	Type    string          `json:"type"` // odds | pong | error
	MatchID string          `json:"match_id,omitempty"`
	Delta   *oddsfeed.Delta `json:"delta,omitempty"`
	Error   string          `json:"error,omitempty"`
}
