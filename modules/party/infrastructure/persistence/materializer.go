package persistence

import (
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
	"partyreg/pkg/fieldvalue"
)

// rowSource is the cursor surface the materializer consumes. pgx.Rows
// satisfies it; tests substitute an in-memory cursor. The cursor is
// single-pass and forward-only.
type rowSource interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// rowBuf receives one scanned row. Pointer fields are nil when the column
// was NULL; fields whose ordinal is absent are never written.
type rowBuf struct {
	uuid      uuid.UUID
	partyType string
	versionId int64

	partyId          *int64
	personIdentifier *string
	orgIdentifier    *string
	displayName      *string
	createdAt        *time.Time
	modifiedAt       *time.Time
	isDeleted        *bool
	deletedAt        *time.Time
	owner            *uuid.UUID

	firstName   *string
	middleName  *string
	lastName    *string
	shortName   *string
	dateOfBirth *time.Time
	dateOfDeath *time.Time
	address     []byte
	mailingAddr []byte

	unitStatus     *string
	unitType       *string
	telephone      *string
	email          *string
	internet       *string
	orgMailingAddr []byte
	businessAddr   []byte
	systemUserType *string

	userId       *int64
	username     *string
	userIsActive *bool

	parentUuid *uuid.UUID
}

// scanDests maps the query's recorded ordinals to destinations in buf.
func (q *CompiledQuery) scanDests(buf *rowBuf) []any {
	dests := make([]any, q.numCols)
	set := func(idx int, p any) {
		if idx >= 0 {
			dests[idx] = p
		}
	}
	c := &q.cols
	set(c.uuid, &buf.uuid)
	set(c.partyType, &buf.partyType)
	set(c.versionId, &buf.versionId)
	set(c.partyId, &buf.partyId)
	set(c.personIdentifier, &buf.personIdentifier)
	set(c.orgIdentifier, &buf.orgIdentifier)
	set(c.displayName, &buf.displayName)
	set(c.createdAt, &buf.createdAt)
	set(c.modifiedAt, &buf.modifiedAt)
	set(c.isDeleted, &buf.isDeleted)
	set(c.deletedAt, &buf.deletedAt)
	set(c.owner, &buf.owner)
	set(c.firstName, &buf.firstName)
	set(c.middleName, &buf.middleName)
	set(c.lastName, &buf.lastName)
	set(c.shortName, &buf.shortName)
	set(c.dateOfBirth, &buf.dateOfBirth)
	set(c.dateOfDeath, &buf.dateOfDeath)
	set(c.address, &buf.address)
	set(c.mailingAddr, &buf.mailingAddr)
	set(c.unitStatus, &buf.unitStatus)
	set(c.unitType, &buf.unitType)
	set(c.telephone, &buf.telephone)
	set(c.email, &buf.email)
	set(c.internet, &buf.internet)
	set(c.orgMailingAddr, &buf.orgMailingAddr)
	set(c.businessAddr, &buf.businessAddr)
	set(c.systemUserType, &buf.systemUserType)
	set(c.userId, &buf.userId)
	set(c.username, &buf.username)
	set(c.userIsActive, &buf.userIsActive)
	set(c.parentUuid, &buf.parentUuid)
	return dests
}

// groupKey identifies the row group one entity aggregates over. A party
// can appear twice in one result (as a primary hit and as a sub-unit of
// another primary hit); the parent pointer keeps those groups apart.
type groupKey struct {
	uuid   uuid.UUID
	parent uuid.UUID
}

func (q *CompiledQuery) keyOf(buf *rowBuf) groupKey {
	k := groupKey{uuid: buf.uuid}
	if buf.parentUuid != nil {
		k.parent = *buf.parentUuid
	}
	return k
}

// materialize turns an ordered cursor into typed party records, one per
// row group. Rows are consumed lazily: a slow consumer backpressures the
// cursor instead of buffering. The cursor is closed when the sequence
// finishes or the consumer stops early.
func materialize(rows rowSource, q *CompiledQuery) iter.Seq2[*types.PartyRecord, error] {
	return func(yield func(*types.PartyRecord, error) bool) {
		defer rows.Close()

		var (
			current *types.PartyRecord
			key     groupKey
		)
		for rows.Next() {
			var buf rowBuf
			if err := rows.Scan(q.scanDests(&buf)...); err != nil {
				yield(nil, err)
				return
			}

			if current != nil && q.keyOf(&buf) == key {
				// Continuation row for the same party: only legal when
				// user-id aggregation was requested.
				if !q.aggregatesUsers {
					yield(nil, fmt.Errorf("materialize: duplicate row for party %s without user aggregation", buf.uuid))
					return
				}
				appendUserRow(current, &buf)
				continue
			}

			if current != nil && !yield(current, nil) {
				return
			}
			rec, err := q.newRecord(&buf)
			if err != nil {
				yield(nil, err)
				return
			}
			current = rec
			key = q.keyOf(&buf)
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
			return
		}
		if current != nil {
			yield(current, nil)
		}
	}
}

// collect drains a materialized sequence into a slice.
func collect(seq iter.Seq2[*types.PartyRecord, error]) ([]*types.PartyRecord, error) {
	var out []*types.PartyRecord
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// newRecord materializes the leading row of a group into a typed record.
// The discriminator selects which variant's ordinals are read; ordinals
// belonging to other variants stay unset.
func (q *CompiledQuery) newRecord(buf *rowBuf) (*types.PartyRecord, error) {
	pt := types.PartyType(buf.partyType)
	if !pt.Known() {
		return nil, fmt.Errorf("%w: %q on party %s", ports.ErrUnknownPartyType, buf.partyType, buf.uuid)
	}

	rec := &types.PartyRecord{
		Uuid:      buf.uuid,
		Type:      pt,
		VersionId: uint64(buf.versionId),
	}
	c := &q.cols

	if c.partyId >= 0 {
		rec.PartyId = fieldvalue.OfPtr(buf.partyId)
	}
	if c.personIdentifier >= 0 {
		rec.PersonIdentifier = fieldvalue.OfPtr(buf.personIdentifier)
	}
	if c.orgIdentifier >= 0 {
		rec.OrganizationIdentifier = fieldvalue.OfPtr(buf.orgIdentifier)
	}
	if c.displayName >= 0 {
		rec.DisplayName = fieldvalue.OfPtr(buf.displayName)
	}
	if c.createdAt >= 0 {
		rec.CreatedAt = fieldvalue.OfPtr(buf.createdAt)
	}
	if c.modifiedAt >= 0 {
		rec.ModifiedAt = fieldvalue.OfPtr(buf.modifiedAt)
	}
	if c.isDeleted >= 0 {
		rec.IsDeleted = fieldvalue.OfPtr(buf.isDeleted)
	}
	if c.deletedAt >= 0 {
		rec.DeletedAt = fieldvalue.OfPtr(buf.deletedAt)
	}
	if c.owner >= 0 {
		rec.OwnerUuid = fieldvalue.OfPtr(buf.owner)
	}

	switch pt {
	case types.PartyTypePerson:
		if err := readPerson(rec, c, buf); err != nil {
			return nil, err
		}
	case types.PartyTypeOrganization:
		if err := readOrganization(rec, c, buf); err != nil {
			return nil, err
		}
	case types.PartyTypeSystemUser:
		if c.systemUserType >= 0 {
			rec.SystemUserType = fieldvalue.OfPtr(buf.systemUserType)
		}
	case types.PartyTypeSelfIdentifiedUser, types.PartyTypeEnterpriseUser:
		// No variant sub-table.
	}

	applyLeadingUserRow(rec, c, buf, q.aggregatesUsers)
	return rec, nil
}

func readPerson(rec *types.PartyRecord, c *ordinals, buf *rowBuf) error {
	if c.firstName >= 0 {
		rec.FirstName = fieldvalue.OfPtr(buf.firstName)
	}
	if c.middleName >= 0 {
		rec.MiddleName = fieldvalue.OfPtr(buf.middleName)
	}
	if c.lastName >= 0 {
		rec.LastName = fieldvalue.OfPtr(buf.lastName)
	}
	if c.shortName >= 0 {
		rec.ShortName = fieldvalue.OfPtr(buf.shortName)
	}
	if c.dateOfBirth >= 0 {
		rec.DateOfBirth = fieldvalue.OfPtr(buf.dateOfBirth)
	}
	if c.dateOfDeath >= 0 {
		rec.DateOfDeath = fieldvalue.OfPtr(buf.dateOfDeath)
	}
	if c.address >= 0 {
		v, err := decodeAddress(buf.address)
		if err != nil {
			return err
		}
		rec.Address = v
	}
	if c.mailingAddr >= 0 {
		v, err := decodeAddress(buf.mailingAddr)
		if err != nil {
			return err
		}
		rec.MailingAddress = v
	}
	return nil
}

func readOrganization(rec *types.PartyRecord, c *ordinals, buf *rowBuf) error {
	if c.unitStatus >= 0 {
		rec.UnitStatus = fieldvalue.OfPtr(buf.unitStatus)
	}
	if c.unitType >= 0 {
		rec.UnitType = fieldvalue.OfPtr(buf.unitType)
	}
	if c.telephone >= 0 {
		rec.TelephoneNumber = fieldvalue.OfPtr(buf.telephone)
	}
	if c.email >= 0 {
		rec.EmailAddress = fieldvalue.OfPtr(buf.email)
	}
	if c.internet >= 0 {
		rec.InternetAddress = fieldvalue.OfPtr(buf.internet)
	}
	if c.orgMailingAddr >= 0 {
		v, err := decodeAddress(buf.orgMailingAddr)
		if err != nil {
			return err
		}
		rec.OrgMailingAddress = v
	}
	if c.businessAddr >= 0 {
		v, err := decodeAddress(buf.businessAddr)
		if err != nil {
			return err
		}
		rec.BusinessAddress = v
	}
	if c.parentUuid >= 0 {
		rec.ParentOrganizationUuid = fieldvalue.OfPtr(buf.parentUuid)
	}
	return nil
}

func decodeAddress(raw []byte) (fieldvalue.Value[types.Address], error) {
	if raw == nil {
		return fieldvalue.Null[types.Address](), nil
	}
	var a types.Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return fieldvalue.Unset[types.Address](), fmt.Errorf("materialize: decode address: %w", err)
	}
	return fieldvalue.Of(a), nil
}

// applyLeadingUserRow reads the user columns of a group's first row. The
// ordering guarantees the active user row (when one exists) leads, so the
// first row decides UserId and Username.
func applyLeadingUserRow(rec *types.PartyRecord, c *ordinals, buf *rowBuf, aggregate bool) {
	if c.userId < 0 {
		return
	}
	if buf.userId == nil {
		rec.User = fieldvalue.Null[types.PartyUserRecord]()
		return
	}

	id := uint64(*buf.userId)
	user := types.PartyUserRecord{}
	if buf.userIsActive != nil && *buf.userIsActive {
		user.UserId = &id
		if buf.username != nil {
			name := *buf.username
			user.Username = &name
		}
	}
	if aggregate {
		user.UserIds = []uint64{id}
	}
	rec.User = fieldvalue.Of(user)
}

// appendUserRow folds a continuation row's user id into the group's
// record. Ordering puts historical ids after the active one, most recent
// first.
func appendUserRow(rec *types.PartyRecord, buf *rowBuf) {
	if buf.userId == nil {
		return
	}
	user, ok := rec.User.Get()
	if !ok {
		user = types.PartyUserRecord{}
	}
	user.UserIds = append(user.UserIds, uint64(*buf.userId))
	rec.User = fieldvalue.Of(user)
}
