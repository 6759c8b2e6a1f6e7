package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// PartyVersionSequence is the monotonic sequence behind party version ids.
const PartyVersionSequence = partyVersionSequence

// NextVersionFor claims the next value of a version sequence. The value is
// transaction-scoped: strictly increasing, but invisible to other readers
// until the surrounding transaction commits.
func NextVersionFor(ctx context.Context, db querier, sequence string) (uint64, error) {
	var v int64
	err := db.QueryRow(ctx,
		`SELECT register.tx_nextval(@sequence)`,
		pgx.NamedArgs{"sequence": sequence},
	).Scan(&v)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// SafeWatermarkFor returns the highest sequence value guaranteed durable
// and visible to every reader: every transaction that may have claimed a
// smaller value has either committed or rolled back. A change-feed scan
// bounded by this value can never be overtaken by a smaller version id
// committing later.
func SafeWatermarkFor(ctx context.Context, db querier, sequence string) (uint64, error) {
	var v int64
	err := db.QueryRow(ctx,
		`SELECT register.safe_watermark(@sequence)`,
		pgx.NamedArgs{"sequence": sequence},
	).Scan(&v)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}
