// Package persistence is the Postgres data-access engine for the party
// registry: projection queries, row materialization, the change stream,
// reference-data caching and the upsert engines. All store access happens
// on the caller-supplied connection scope; no transactions are opened here
// except where a single mutation spans several statements.
package persistence

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
)

// querier is the connection scope a store runs on: a pgxpool.Pool, a
// pgxpool.Conn or an open pgx.Tx all satisfy it.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PartyPGStore struct {
	db      querier
	queries queryCache
}

func NewPartyPGStore(db querier) *PartyPGStore {
	return &PartyPGStore{db: db}
}

var _ ports.PartyStore = (*PartyPGStore)(nil)
var _ ports.RoleAssignmentStore = (*PartyPGStore)(nil)

// GetByUuid loads one party by its global identity.
func (s *PartyPGStore) GetByUuid(ctx context.Context, partyUuid uuid.UUID, fields types.FieldMask) (*types.PartyRecord, error) {
	return s.GetByIdentifier(ctx, types.ByUuid(partyUuid), fields)
}

// GetByIdentifier resolves exactly one identifier to one party. Sub-unit
// expansion produces additional row groups and is only surfaced through
// LookupMany; here any expanded children are not read.
func (s *PartyPGStore) GetByIdentifier(ctx context.Context, lookup types.LookupOne, fields types.FieldMask) (*types.PartyRecord, error) {
	seq, err := s.queryParties(ctx, fields, lookup)
	if err != nil {
		return nil, err
	}
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, ports.ErrPartyNotFound
}

// LookupMany resolves one or more identifier sets, OR-combined, streaming
// matches in deterministic order. An empty lookup yields an empty sequence
// without a store round-trip.
func (s *PartyPGStore) LookupMany(ctx context.Context, lookup types.LookupMultiple, fields types.FieldMask) (iter.Seq2[*types.PartyRecord, error], error) {
	if lookup.IsEmpty() {
		return func(func(*types.PartyRecord, error) bool) {}, nil
	}
	return s.queryParties(ctx, fields, lookup)
}

// GetStream returns one page of the change feed: every party with
// fromExclusive < versionId <= the safe watermark, in strictly increasing
// version order, at most Limit entries. Repeatedly passing the last seen
// version visits every committed mutation exactly once.
func (s *PartyPGStore) GetStream(ctx context.Context, page types.StreamPage, fields types.FieldMask) ([]*types.PartyRecord, error) {
	seq, err := s.queryParties(ctx, fields, page)
	if err != nil {
		return nil, err
	}
	return collect(seq)
}

func (s *PartyPGStore) queryParties(ctx context.Context, fields types.FieldMask, filter types.Filter) (iter.Seq2[*types.PartyRecord, error], error) {
	q, err := s.queries.Get(fields, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, q.SQL, filterArgs(filter))
	if err != nil {
		return nil, err
	}
	return materialize(rows, q), nil
}

// filterArgs binds a filter's values as named parameters. The compiled
// SQL for the filter's shape references exactly these names.
func filterArgs(filter types.Filter) pgx.NamedArgs {
	switch f := filter.(type) {
	case types.LookupOne:
		switch f.Kind {
		case types.IdentifierUuid:
			return pgx.NamedArgs{"party_uuid": f.Uuid}
		case types.IdentifierPartyId:
			return pgx.NamedArgs{"party_id": f.PartyId}
		case types.IdentifierPerson:
			return pgx.NamedArgs{"person_identifier": f.Identifier}
		case types.IdentifierOrganization:
			return pgx.NamedArgs{"organization_identifier": f.Identifier}
		case types.IdentifierUserId:
			return pgx.NamedArgs{"user_id": int64(f.UserId)}
		case types.IdentifierUsername:
			return pgx.NamedArgs{"username": f.Identifier}
		}
	case types.LookupMultiple:
		args := pgx.NamedArgs{}
		if len(f.Uuids) > 0 {
			args["party_uuids"] = f.Uuids
		}
		if len(f.PartyIds) > 0 {
			args["party_ids"] = f.PartyIds
		}
		if len(f.PersonIdentifiers) > 0 {
			args["person_identifiers"] = f.PersonIdentifiers
		}
		if len(f.OrganizationIdentifiers) > 0 {
			args["organization_identifiers"] = f.OrganizationIdentifiers
		}
		if len(f.UserIds) > 0 {
			ids := make([]int64, len(f.UserIds))
			for i, id := range f.UserIds {
				ids[i] = int64(id)
			}
			args["user_ids"] = ids
		}
		return args
	case types.StreamPage:
		args := pgx.NamedArgs{
			"from_exclusive": int64(f.FromExclusive),
			"page_size":      int32(f.Limit),
		}
		if len(f.PartyTypes) > 0 {
			names := make([]string, len(f.PartyTypes))
			for i, pt := range f.PartyTypes {
				names[i] = string(pt)
			}
			args["party_types"] = names
		}
		return args
	}
	return pgx.NamedArgs{}
}
