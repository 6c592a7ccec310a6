package topics

const (
	// Odds
	OddsUpdates = "odds_updates"

	// Resultados de partidas (feed de settlement)
	MatchResults = "match_results"

	// Notificações pós-liquidação
	BetSettled = "bet_settled"

	// DLQs
	MatchResultsDLQ = "match_results_dlq"
)
