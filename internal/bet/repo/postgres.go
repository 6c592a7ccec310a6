package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/bet-core-engine/internal/bet"
)

// Postgres arquiva apostas em banco (write-behind do engine em memória)
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// InsertBet grava a aposta recém-aceita com estado PENDING
func (p *Postgres) InsertBet(ctx context.Context, b bet.Bet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bets
		  (id, account_id, match_id, market, selection, stake_cents, odds_locked, potential_payout_cents, state, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.AccountID, b.MatchID, b.Market, b.Selection,
		b.StakeCents, b.OddsLocked, b.PotentialPayoutCents, string(b.State), b.CreatedAt,
	)
	return err
}

// UpdateBetState grava a transição terminal (WON/LOST/VOID)
func (p *Postgres) UpdateBetState(ctx context.Context, b bet.Bet) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bets SET state=$1, settled_at=$2 WHERE id=$3`,
		string(b.State), b.SettledAt, b.ID,
	)
	return err
}

// ListPending retorna as apostas ainda PENDING para restauração no boot
func (p *Postgres) ListPending(ctx context.Context) ([]bet.Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, match_id, market, selection, stake_cents, odds_locked, potential_payout_cents, state, created_at
		FROM bets WHERE state=$1 ORDER BY created_at`,
		string(bet.StatePending),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bet.Bet
	for rows.Next() {
		var (
			b     bet.Bet
			state string
		)
		if err := rows.Scan(&b.ID, &b.AccountID, &b.MatchID, &b.Market, &b.Selection,
			&b.StakeCents, &b.OddsLocked, &b.PotentialPayoutCents, &state, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.State = bet.State(state)
		out = append(out, b)
	}
	return out, rows.Err()
}
