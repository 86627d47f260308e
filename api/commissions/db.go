package commissions

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"BrokerSettle/internal/matching"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so loaders can run
// inside or outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgDirectory backs the matching engine with the policies and brokers
// tables. Policy numbers in the table are stored normalized; lookups
// normalize on the caller side, so the comparison is symmetric.
type pgDirectory struct {
	db querier
}

func (d *pgDirectory) LookupPolicy(ctx context.Context, policyNumber string) (matching.PolicyRef, bool, error) {
	var brokerID string
	var override *string
	err := d.db.QueryRow(ctx,
		`SELECT broker_id::text, percent_override::text FROM policies WHERE policy_number = $1`,
		policyNumber,
	).Scan(&brokerID, &override)
	if err == pgx.ErrNoRows {
		return matching.PolicyRef{}, false, nil
	}
	if err != nil {
		return matching.PolicyRef{}, false, err
	}
	ref := matching.PolicyRef{BrokerID: brokerID}
	if override != nil {
		if d, err := decimal.NewFromString(*override); err == nil {
			ref.PercentOverride = &d
		}
	}
	return ref, true, nil
}

func (d *pgDirectory) LookupBrokerByHint(ctx context.Context, hint string) (string, bool, error) {
	var brokerID string
	err := d.db.QueryRow(ctx,
		`SELECT id::text FROM brokers WHERE lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(hint)),
	).Scan(&brokerID)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return brokerID, true, nil
}

func scanDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
