package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
	"partyreg/pkg/fieldvalue"
	"partyreg/pkg/problems"
)

// The identity-tuple guard on the update arm makes immutable fields
// immutable: when the caller's record disagrees with the stored row on
// (id, type, person identifier, organization identifier), the update
// matches zero rows and the mutation is rejected instead of applied.
const upsertPartySQL = `
INSERT INTO register.party AS p (
    "uuid", "id", party_type, display_name, person_identifier, organization_identifier,
    created, updated, is_deleted, deleted_at, "owner", system_user_type, version_id
) VALUES (
    @uuid, @id, @party_type, @display_name, @person_identifier, @organization_identifier,
    coalesce(@created, now()), coalesce(@updated, now()), coalesce(@is_deleted, false),
    @deleted_at, @owner, @system_user_type,
    register.tx_nextval('register.party_version_id_seq')
)
ON CONFLICT ("uuid") DO UPDATE SET
    display_name = EXCLUDED.display_name,
    updated = EXCLUDED.updated,
    is_deleted = EXCLUDED.is_deleted,
    deleted_at = EXCLUDED.deleted_at,
    "owner" = EXCLUDED."owner",
    system_user_type = EXCLUDED.system_user_type,
    version_id = register.tx_nextval('register.party_version_id_seq')
WHERE p."id" IS NOT DISTINCT FROM EXCLUDED."id"
  AND p.party_type = EXCLUDED.party_type
  AND p.person_identifier IS NOT DISTINCT FROM EXCLUDED.person_identifier
  AND p.organization_identifier IS NOT DISTINCT FROM EXCLUDED.organization_identifier
RETURNING
    "uuid", "id", party_type, display_name, person_identifier, organization_identifier,
    created, updated, is_deleted, deleted_at, "owner", system_user_type, version_id`

const upsertPersonSQL = `
INSERT INTO register.person AS f (
    "uuid", first_name, middle_name, last_name, short_name,
    date_of_birth, date_of_death, address, mailing_address
) VALUES (
    @uuid, @first_name, @middle_name, @last_name, @short_name,
    @date_of_birth, @date_of_death, @address, @mailing_address
)
ON CONFLICT ("uuid") DO UPDATE SET
    first_name = EXCLUDED.first_name,
    middle_name = EXCLUDED.middle_name,
    last_name = EXCLUDED.last_name,
    short_name = EXCLUDED.short_name,
    date_of_birth = EXCLUDED.date_of_birth,
    date_of_death = EXCLUDED.date_of_death,
    address = EXCLUDED.address,
    mailing_address = EXCLUDED.mailing_address`

const upsertOrganizationSQL = `
INSERT INTO register.organization AS o (
    "uuid", unit_status, unit_type, telephone_number, email_address,
    internet_address, mailing_address, business_address
) VALUES (
    @uuid, @unit_status, @unit_type, @telephone_number, @email_address,
    @internet_address, @mailing_address, @business_address
)
ON CONFLICT ("uuid") DO UPDATE SET
    unit_status = EXCLUDED.unit_status,
    unit_type = EXCLUDED.unit_type,
    telephone_number = EXCLUDED.telephone_number,
    email_address = EXCLUDED.email_address,
    internet_address = EXCLUDED.internet_address,
    mailing_address = EXCLUDED.mailing_address,
    business_address = EXCLUDED.business_address`

// UpsertParty inserts or updates one party. Identity fields never drift:
// a conflicting insert falls back to an update guarded by the full
// identity tuple, and a guard miss reports InvalidUpdateError. Uniqueness
// conflicts against another party's identity report ConflictError with
// the violated constraint. CreatedAt is preserved on update; mutable
// fields always take the caller's values.
func (s *PartyPGStore) UpsertParty(ctx context.Context, record *types.PartyRecord) (*types.PartyRecord, error) {
	if err := validateUpsertRecord(record); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	result, err := scanUpsertedParty(tx.QueryRow(ctx, upsertPartySQL, upsertPartyArgs(record)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, problems.NewInvalidUpdate("", "identity fields do not match the stored party")
		}
		return nil, translatePartyError(err)
	}

	switch record.Type {
	case types.PartyTypePerson:
		err = upsertPersonDetails(ctx, tx, record, result)
	case types.PartyTypeOrganization:
		err = upsertOrganizationDetails(ctx, tx, record, result)
	case types.PartyTypeSelfIdentifiedUser, types.PartyTypeSystemUser, types.PartyTypeEnterpriseUser:
		// No variant sub-table.
	}
	if err != nil {
		return nil, translatePartyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func validateUpsertRecord(record *types.PartyRecord) error {
	if record == nil || record.Uuid == uuid.Nil {
		return problems.NewInvalidUpdate("uuid", "party uuid is required")
	}
	if !record.Type.Known() {
		return fmt.Errorf("%w: %q", ports.ErrUnknownPartyType, record.Type)
	}
	if record.PersonIdentifier.HasValue() && record.OrganizationIdentifier.HasValue() {
		return problems.NewInvalidUpdate("person_identifier", "a party cannot carry both a person and an organization identifier")
	}
	return nil
}

func upsertPartyArgs(record *types.PartyRecord) pgx.NamedArgs {
	return pgx.NamedArgs{
		"uuid":                    record.Uuid,
		"id":                      record.PartyId.Ptr(),
		"party_type":              string(record.Type),
		"display_name":            record.DisplayName.Ptr(),
		"person_identifier":       record.PersonIdentifier.Ptr(),
		"organization_identifier": record.OrganizationIdentifier.Ptr(),
		"created":                 record.CreatedAt.Ptr(),
		"updated":                 record.ModifiedAt.Ptr(),
		"is_deleted":              record.IsDeleted.Ptr(),
		"deleted_at":              record.DeletedAt.Ptr(),
		"owner":                   record.OwnerUuid.Ptr(),
		"system_user_type":        record.SystemUserType.Ptr(),
	}
}

func scanUpsertedParty(row pgx.Row) (*types.PartyRecord, error) {
	var (
		buf       rowBuf
		created   time.Time
		updated   time.Time
		isDeleted bool
	)
	err := row.Scan(
		&buf.uuid, &buf.partyId, &buf.partyType, &buf.displayName,
		&buf.personIdentifier, &buf.orgIdentifier,
		&created, &updated, &isDeleted, &buf.deletedAt,
		&buf.owner, &buf.systemUserType, &buf.versionId,
	)
	if err != nil {
		return nil, err
	}

	rec := &types.PartyRecord{
		Uuid:                   buf.uuid,
		Type:                   types.PartyType(buf.partyType),
		VersionId:              uint64(buf.versionId),
		PartyId:                fieldvalue.OfPtr(buf.partyId),
		DisplayName:            fieldvalue.OfPtr(buf.displayName),
		PersonIdentifier:       fieldvalue.OfPtr(buf.personIdentifier),
		OrganizationIdentifier: fieldvalue.OfPtr(buf.orgIdentifier),
		CreatedAt:              fieldvalue.Of(created),
		ModifiedAt:             fieldvalue.Of(updated),
		IsDeleted:              fieldvalue.Of(isDeleted),
		DeletedAt:              fieldvalue.OfPtr(buf.deletedAt),
		OwnerUuid:              fieldvalue.OfPtr(buf.owner),
	}
	if rec.Type == types.PartyTypeSystemUser {
		rec.SystemUserType = fieldvalue.OfPtr(buf.systemUserType)
	}
	return rec, nil
}

func upsertPersonDetails(ctx context.Context, tx pgx.Tx, record *types.PartyRecord, result *types.PartyRecord) error {
	address, err := encodeAddress(record.Address)
	if err != nil {
		return err
	}
	mailing, err := encodeAddress(record.MailingAddress)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, upsertPersonSQL, pgx.NamedArgs{
		"uuid":            result.Uuid,
		"first_name":      record.FirstName.Ptr(),
		"middle_name":     record.MiddleName.Ptr(),
		"last_name":       record.LastName.Ptr(),
		"short_name":      record.ShortName.Ptr(),
		"date_of_birth":   record.DateOfBirth.Ptr(),
		"date_of_death":   record.DateOfDeath.Ptr(),
		"address":         address,
		"mailing_address": mailing,
	})
	if err != nil {
		return err
	}
	result.FirstName = record.FirstName
	result.MiddleName = record.MiddleName
	result.LastName = record.LastName
	result.ShortName = record.ShortName
	result.DateOfBirth = record.DateOfBirth
	result.DateOfDeath = record.DateOfDeath
	result.Address = record.Address
	result.MailingAddress = record.MailingAddress
	return nil
}

func upsertOrganizationDetails(ctx context.Context, tx pgx.Tx, record *types.PartyRecord, result *types.PartyRecord) error {
	mailing, err := encodeAddress(record.OrgMailingAddress)
	if err != nil {
		return err
	}
	business, err := encodeAddress(record.BusinessAddress)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, upsertOrganizationSQL, pgx.NamedArgs{
		"uuid":             result.Uuid,
		"unit_status":      record.UnitStatus.Ptr(),
		"unit_type":        record.UnitType.Ptr(),
		"telephone_number": record.TelephoneNumber.Ptr(),
		"email_address":    record.EmailAddress.Ptr(),
		"internet_address": record.InternetAddress.Ptr(),
		"mailing_address":  mailing,
		"business_address": business,
	})
	if err != nil {
		return err
	}
	result.UnitStatus = record.UnitStatus
	result.UnitType = record.UnitType
	result.TelephoneNumber = record.TelephoneNumber
	result.EmailAddress = record.EmailAddress
	result.InternetAddress = record.InternetAddress
	result.OrgMailingAddress = record.OrgMailingAddress
	result.BusinessAddress = record.BusinessAddress
	return nil
}

func encodeAddress(v fieldvalue.Value[types.Address]) (any, error) {
	a, ok := v.Get()
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	return raw, nil
}

// UpsertPartyUser activates or deactivates a user id on a party and
// returns the party's version afterwards. Activation retires the
// previously active id, appends to the historical id list and advances
// the version; re-activating the already active id is a no-op.
// Deactivation never advances the version: losing its user id is not new
// externally visible party state.
func (s *PartyPGStore) UpsertPartyUser(ctx context.Context, cmd types.PartyUserCommand) (uint64, error) {
	if cmd.PartyUuid == uuid.Nil {
		return 0, problems.NewInvalidUpdate("uuid", "party uuid is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var version int64
	err = tx.QueryRow(ctx,
		`SELECT version_id FROM register.party WHERE "uuid" = @party_uuid FOR UPDATE`,
		pgx.NamedArgs{"party_uuid": cmd.PartyUuid},
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ports.ErrPartyNotFound
		}
		return 0, err
	}

	if !cmd.Active {
		_, err = tx.Exec(ctx,
			`UPDATE register."user" SET is_active = false
			 WHERE party_uuid = @party_uuid AND user_id = @user_id AND is_active`,
			pgx.NamedArgs{"party_uuid": cmd.PartyUuid, "user_id": int64(cmd.UserId)},
		)
		if err != nil {
			return 0, translatePartyError(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return uint64(version), nil
	}

	var alreadyActive bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM register."user"
		     WHERE party_uuid = @party_uuid AND user_id = @user_id AND is_active
		 )`,
		pgx.NamedArgs{"party_uuid": cmd.PartyUuid, "user_id": int64(cmd.UserId)},
	).Scan(&alreadyActive)
	if err != nil {
		return 0, err
	}
	if alreadyActive {
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return uint64(version), nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE register."user" SET is_active = false
		 WHERE party_uuid = @party_uuid AND is_active`,
		pgx.NamedArgs{"party_uuid": cmd.PartyUuid},
	)
	if err != nil {
		return 0, translatePartyError(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO register."user" AS u (party_uuid, user_id, username, is_active)
		 VALUES (@party_uuid, @user_id, @username, true)
		 ON CONFLICT (party_uuid, user_id) DO UPDATE SET
		     username = coalesce(EXCLUDED.username, u.username),
		     is_active = true`,
		pgx.NamedArgs{
			"party_uuid": cmd.PartyUuid,
			"user_id":    int64(cmd.UserId),
			"username":   cmd.Username,
		},
	)
	if err != nil {
		return 0, translatePartyError(err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE register.party
		 SET version_id = register.tx_nextval('register.party_version_id_seq'), updated = now()
		 WHERE "uuid" = @party_uuid
		 RETURNING version_id`,
		pgx.NamedArgs{"party_uuid": cmd.PartyUuid},
	).Scan(&version)
	if err != nil {
		return 0, translatePartyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return uint64(version), nil
}
