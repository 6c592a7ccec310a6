package events

import "time"

// Selection é uma seleção apostável de um mercado, na ordem do bookmaker
type Selection struct {
	Label string  `json:"label"` // "home" | "draw" | "away"
	Odds  float64 `json:"odds"`
}

// Evento publicado no tópico "odds_updates" pelo fornecedor de preços
type OddsUpdate struct {
	MatchID    string      `json:"match_id"`
	HomeTeam   string      `json:"home_team"`
	AwayTeam   string      `json:"away_team"`
	Market     string      `json:"market"` // "1x2"
	Selections []Selection `json:"selections"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Source     string      `json:"source"`  // "supplier-simulator"
	Version    int64       `json:"version"` // incrementado a cada atualização
}
