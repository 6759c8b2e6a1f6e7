package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
	"partyreg/pkg/fieldvalue"
	"partyreg/pkg/problems"
)

func TestUpsertPartyValidation(t *testing.T) {
	store := NewPartyPGStore(&stubQuerier{})

	_, err := store.UpsertParty(context.Background(), nil)
	if !problems.IsInvalidUpdate(err) {
		t.Fatalf("nil record: err=%v", err)
	}

	_, err = store.UpsertParty(context.Background(), &types.PartyRecord{Type: types.PartyTypePerson})
	if !problems.IsInvalidUpdate(err) {
		t.Fatalf("nil uuid: err=%v", err)
	}

	_, err = store.UpsertParty(context.Background(), &types.PartyRecord{Uuid: uuidA, Type: "robot"})
	if !errors.Is(err, ports.ErrUnknownPartyType) {
		t.Fatalf("unknown type: err=%v", err)
	}

	_, err = store.UpsertParty(context.Background(), &types.PartyRecord{
		Uuid:                   uuidA,
		Type:                   types.PartyTypePerson,
		PersonIdentifier:       fieldvalue.Of("01025101037"),
		OrganizationIdentifier: fieldvalue.Of("123456785"),
	})
	if !problems.IsInvalidUpdate(err) {
		t.Fatalf("both identifiers: err=%v", err)
	}
}

func TestUpsertPartyIdentityGuardMiss(t *testing.T) {
	tx := &fakeTx{} // no scripted rows: the upsert returns no row
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	_, err := store.UpsertParty(context.Background(), &types.PartyRecord{Uuid: uuidA, Type: types.PartyTypePerson})
	if !problems.IsInvalidUpdate(err) {
		t.Fatalf("err=%v", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
}

func TestUpsertPartyUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_party_person_identifier"}
	tx := &fakeTx{rows: []func(dest ...any) error{
		func(...any) error { return pgErr },
	}}
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	_, err := store.UpsertParty(context.Background(), &types.PartyRecord{Uuid: uuidA, Type: types.PartyTypePerson})
	conflict, ok := errors.AsType[*problems.ConflictError](err)
	if !ok {
		t.Fatalf("err=%v", err)
	}
	if conflict.Column != "person_identifier" {
		t.Fatalf("conflict=%+v", conflict)
	}
	if tx.committed {
		t.Fatal("conflicting upsert committed")
	}
}

func TestUpsertPartyPerson(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tx := &fakeTx{rows: []func(dest ...any) error{
		scanCells(uuidA, int64(50001), "person", "Ola Nordmann", "01025101037", nil,
			now, now, false, nil, nil, nil, int64(9)),
	}}
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	record := &types.PartyRecord{
		Uuid:             uuidA,
		Type:             types.PartyTypePerson,
		PartyId:          fieldvalue.Of(int64(50001)),
		DisplayName:      fieldvalue.Of("Ola Nordmann"),
		PersonIdentifier: fieldvalue.Of("01025101037"),
		FirstName:        fieldvalue.Of("Ola"),
		LastName:         fieldvalue.Of("Nordmann"),
	}
	result, err := store.UpsertParty(context.Background(), record)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	if result.VersionId != 9 {
		t.Fatalf("versionId=%d", result.VersionId)
	}
	if got := result.PartyId.MustGet(); got != 50001 {
		t.Fatalf("partyId=%d", got)
	}
	if got := result.CreatedAt.MustGet(); !got.Equal(now) {
		t.Fatalf("createdAt=%v", got)
	}
	if got := result.FirstName.MustGet(); got != "Ola" {
		t.Fatalf("firstName=%q", got)
	}
	if !result.OrganizationIdentifier.IsNull() {
		t.Fatalf("organizationIdentifier=%v", result.OrganizationIdentifier)
	}
	if len(tx.execs) != 1 {
		t.Fatalf("execs=%d", len(tx.execs))
	}
	if !tx.committed {
		t.Fatal("not committed")
	}
}

func TestUpsertPartyUserValidation(t *testing.T) {
	store := NewPartyPGStore(&stubQuerier{})

	_, err := store.UpsertPartyUser(context.Background(), types.PartyUserCommand{UserId: 1, Active: true})
	if !problems.IsInvalidUpdate(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestUpsertPartyUserPartyNotFound(t *testing.T) {
	tx := &fakeTx{}
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	_, err := store.UpsertPartyUser(context.Background(), types.PartyUserCommand{PartyUuid: uuidA, UserId: 1, Active: true})
	if !errors.Is(err, ports.ErrPartyNotFound) {
		t.Fatalf("err=%v", err)
	}
	if tx.committed {
		t.Fatal("committed")
	}
}

func TestUpsertPartyUserDeactivateKeepsVersion(t *testing.T) {
	tx := &fakeTx{rows: []func(dest ...any) error{
		scanCells(int64(7)),
	}}
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	version, err := store.UpsertPartyUser(context.Background(), types.PartyUserCommand{PartyUuid: uuidA, UserId: 100})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if version != 7 {
		t.Fatalf("version=%d", version)
	}
	if len(tx.execs) != 1 {
		t.Fatalf("execs=%d", len(tx.execs))
	}
	if !tx.committed {
		t.Fatal("not committed")
	}
}

func TestUpsertPartyUserActivateIdempotent(t *testing.T) {
	tx := &fakeTx{rows: []func(dest ...any) error{
		scanCells(int64(7)), // lock read
		scanCells(true),     // id already active
	}}
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	version, err := store.UpsertPartyUser(context.Background(), types.PartyUserCommand{PartyUuid: uuidA, UserId: 100, Active: true})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if version != 7 {
		t.Fatalf("version=%d", version)
	}
	if len(tx.execs) != 0 {
		t.Fatalf("execs=%d", len(tx.execs))
	}
	if !tx.committed {
		t.Fatal("not committed")
	}
}

func TestUpsertPartyUserActivateBumpsVersion(t *testing.T) {
	tx := &fakeTx{rows: []func(dest ...any) error{
		scanCells(int64(7)), // lock read
		scanCells(false),    // not yet active
		scanCells(int64(8)), // version bump
	}}
	store := NewPartyPGStore(&stubQuerier{tx: tx})

	version, err := store.UpsertPartyUser(context.Background(), types.PartyUserCommand{PartyUuid: uuidA, UserId: 100, Active: true})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if version != 8 {
		t.Fatalf("version=%d", version)
	}
	// One exec retires the previously active id, one upserts the new one.
	if len(tx.execs) != 2 {
		t.Fatalf("execs=%d", len(tx.execs))
	}
	if !tx.committed {
		t.Fatal("not committed")
	}
}
