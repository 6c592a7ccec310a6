package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/bet-core-engine/internal/bonus"
)

// Postgres arquiva grants de bônus em banco (write-behind do accounting em
// memória)
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// InsertGrant grava o grant recém-concedido
func (p *Postgres) InsertGrant(ctx context.Context, g bonus.Grant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bonus_grants
		  (id, account_id, type, amount_cents, wagering_requirement_cents, wagered_cents, status, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.AccountID, string(g.Type), g.AmountCents,
		g.WageringReqCents, g.WageredCents, string(g.Status), g.ExpiresAt, g.CreatedAt,
	)
	return err
}

// UpdateGrant grava progresso de wagering e mudança de status
func (p *Postgres) UpdateGrant(ctx context.Context, g bonus.Grant) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE bonus_grants SET wagered_cents=$1, status=$2 WHERE id=$3`,
		g.WageredCents, string(g.Status), g.ID,
	)
	return err
}

// ListGrants retorna todos os grants arquivados para restauração no boot
func (p *Postgres) ListGrants(ctx context.Context) ([]bonus.Grant, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount_cents, wagering_requirement_cents, wagered_cents, status, expires_at, created_at
		FROM bonus_grants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bonus.Grant
	for rows.Next() {
		var (
			g           bonus.Grant
			typ, status string
		)
		if err := rows.Scan(&g.ID, &g.AccountID, &typ, &g.AmountCents,
			&g.WageringReqCents, &g.WageredCents, &status, &g.ExpiresAt, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Type = bonus.Type(typ)
		g.Status = bonus.Status(status)
		out = append(out, g)
	}
	return out, rows.Err()
}
