package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/bet-core-engine/internal/ledger"
)

// Postgres implementa o journal durável do ledger (append-only).
// Nunca atualiza nem apaga: qualquer correção entra como novo lançamento.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// AppendEntry persiste um lançamento já aceito pelo store em memória
func (p *Postgres) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		  (id, account_id, seq, kind, amount_cents, balance_after_cents, related_bet_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8)`,
		e.ID, e.AccountID, e.Seq, string(e.Kind), e.AmountCents, e.BalanceAfterCents, e.RelatedBetID, e.CreatedAt,
	)
	return err
}

// ListAccounts retorna os ids de conta presentes no journal
func (p *Postgres) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM ledger_entries ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ReplayAccount lê a sequência completa de uma conta, em ordem de seq,
// para reconstrução do estado no boot
func (p *Postgres) ReplayAccount(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, seq, kind, amount_cents, balance_after_cents, COALESCE(related_bet_id,''), created_at
		FROM ledger_entries
		WHERE account_id=$1
		ORDER BY seq`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Seq, &kind, &e.AmountCents, &e.BalanceAfterCents, &e.RelatedBetID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = ledger.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
