package persistence

import (
	"fmt"
	"strings"
	"sync"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
)

// mainUnitRoles are the ccr role identifiers sub-unit expansion follows:
// an assignment (role, from: sub-unit, to: main unit) makes from a child
// of to. The relationship is discovered through role edges, not a foreign
// key on the organization row.
const mainUnitRoleList = `'hovedenhet', 'ikke-naeringsdrivende-hovedenhet'`

const partyVersionSequence = "register.party_version_id_seq"

// ordinals records, per projectable field, the output column index it
// occupies in a compiled query, or -1 when the field was not selected.
// The materializer reads rows through this mapping.
type ordinals struct {
	uuid      int
	partyType int
	versionId int

	partyId          int
	personIdentifier int
	orgIdentifier    int
	displayName      int
	createdAt        int
	modifiedAt       int
	isDeleted        int
	deletedAt        int
	owner            int

	firstName   int
	middleName  int
	lastName    int
	shortName   int
	dateOfBirth int
	dateOfDeath int
	address     int
	mailingAddr int

	unitStatus      int
	unitType        int
	telephone       int
	email           int
	internet        int
	orgMailingAddr  int
	businessAddr    int
	systemUserType  int

	userId       int
	username     int
	userIsActive int

	parentUuid int
}

func newOrdinals() ordinals {
	var o ordinals
	for _, p := range o.fields() {
		*p = -1
	}
	return o
}

func (o *ordinals) fields() []*int {
	return []*int{
		&o.uuid, &o.partyType, &o.versionId,
		&o.partyId, &o.personIdentifier, &o.orgIdentifier, &o.displayName,
		&o.createdAt, &o.modifiedAt, &o.isDeleted, &o.deletedAt, &o.owner,
		&o.firstName, &o.middleName, &o.lastName, &o.shortName,
		&o.dateOfBirth, &o.dateOfDeath, &o.address, &o.mailingAddr,
		&o.unitStatus, &o.unitType, &o.telephone, &o.email, &o.internet,
		&o.orgMailingAddr, &o.businessAddr, &o.systemUserType,
		&o.userId, &o.username, &o.userIsActive,
		&o.parentUuid,
	}
}

// CompiledQuery is an immutable, reusable projection query: SQL text with
// named parameters plus the field-to-ordinal mapping the materializer
// needs. Instances are shared between every request with the same
// (fields, filter shape) pair and must never be mutated after build.
type CompiledQuery struct {
	SQL string

	cols            ordinals
	numCols         int
	aggregatesUsers bool
	streamOrdered   bool
}

type queryKey struct {
	mask   types.FieldMask
	filter string
}

// queryCache memoizes compiled queries. Building is pure, so the cache is
// unbounded: the key space is the finite product of field-mask bits and
// filter shapes.
type queryCache struct {
	compiled sync.Map // queryKey -> *CompiledQuery
}

// Get returns the compiled query for the mask and filter shape, building
// it on first use. Identical requests always observe the same instance.
func (c *queryCache) Get(mask types.FieldMask, filter types.Filter) (*CompiledQuery, error) {
	mask = mask.Normalize()
	key := queryKey{mask: mask, filter: filter.CacheKey()}
	if v, ok := c.compiled.Load(key); ok {
		queryCacheHits.Inc()
		return v.(*CompiledQuery), nil
	}

	q, err := buildQuery(mask, filter)
	if err != nil {
		return nil, err
	}
	actual, loaded := c.compiled.LoadOrStore(key, q)
	if loaded {
		queryCacheHits.Inc()
	} else {
		queryCacheMisses.Inc()
	}
	return actual.(*CompiledQuery), nil
}

// columnSpec describes one projectable output column: the field bit that
// selects it, the source expression and where its ordinal is recorded.
type columnSpec struct {
	field  types.FieldMask // 0 means always selected
	expr   string
	alias  string
	record func(o *ordinals, idx int)
}

var columnSpecs = []columnSpec{
	{0, `p."uuid"`, "p_uuid", func(o *ordinals, i int) { o.uuid = i }},
	{0, `p.party_type`, "p_party_type", func(o *ordinals, i int) { o.partyType = i }},
	{0, `p.version_id`, "p_version_id", func(o *ordinals, i int) { o.versionId = i }},

	{types.FieldIdentifiers, `p."id"`, "p_id", func(o *ordinals, i int) { o.partyId = i }},
	{types.FieldIdentifiers, `p.person_identifier`, "p_person_identifier", func(o *ordinals, i int) { o.personIdentifier = i }},
	{types.FieldIdentifiers, `p.organization_identifier`, "p_organization_identifier", func(o *ordinals, i int) { o.orgIdentifier = i }},
	{types.FieldDisplayName, `p.display_name`, "p_display_name", func(o *ordinals, i int) { o.displayName = i }},
	{types.FieldCreatedAt, `p.created`, "p_created", func(o *ordinals, i int) { o.createdAt = i }},
	{types.FieldModifiedAt, `p.updated`, "p_updated", func(o *ordinals, i int) { o.modifiedAt = i }},
	{types.FieldDeleted, `p.is_deleted`, "p_is_deleted", func(o *ordinals, i int) { o.isDeleted = i }},
	{types.FieldDeleted, `p.deleted_at`, "p_deleted_at", func(o *ordinals, i int) { o.deletedAt = i }},
	{types.FieldOwner, `p."owner"`, "p_owner", func(o *ordinals, i int) { o.owner = i }},

	{types.FieldPersonName, `f.first_name`, "f_first_name", func(o *ordinals, i int) { o.firstName = i }},
	{types.FieldPersonName, `f.middle_name`, "f_middle_name", func(o *ordinals, i int) { o.middleName = i }},
	{types.FieldPersonName, `f.last_name`, "f_last_name", func(o *ordinals, i int) { o.lastName = i }},
	{types.FieldPersonName, `f.short_name`, "f_short_name", func(o *ordinals, i int) { o.shortName = i }},
	{types.FieldPersonDates, `f.date_of_birth`, "f_date_of_birth", func(o *ordinals, i int) { o.dateOfBirth = i }},
	{types.FieldPersonDates, `f.date_of_death`, "f_date_of_death", func(o *ordinals, i int) { o.dateOfDeath = i }},
	{types.FieldPersonAddress, `f.address`, "f_address", func(o *ordinals, i int) { o.address = i }},
	{types.FieldPersonAddress, `f.mailing_address`, "f_mailing_address", func(o *ordinals, i int) { o.mailingAddr = i }},

	{types.FieldOrganizationType, `o.unit_status`, "o_unit_status", func(o *ordinals, i int) { o.unitStatus = i }},
	{types.FieldOrganizationType, `o.unit_type`, "o_unit_type", func(o *ordinals, i int) { o.unitType = i }},
	{types.FieldOrganizationContact, `o.telephone_number`, "o_telephone_number", func(o *ordinals, i int) { o.telephone = i }},
	{types.FieldOrganizationContact, `o.email_address`, "o_email_address", func(o *ordinals, i int) { o.email = i }},
	{types.FieldOrganizationContact, `o.internet_address`, "o_internet_address", func(o *ordinals, i int) { o.internet = i }},
	{types.FieldOrganizationAddress, `o.mailing_address`, "o_mailing_address", func(o *ordinals, i int) { o.orgMailingAddr = i }},
	{types.FieldOrganizationAddress, `o.business_address`, "o_business_address", func(o *ordinals, i int) { o.businessAddr = i }},

	{types.FieldSystemUserType, `p.system_user_type`, "p_system_user_type", func(o *ordinals, i int) { o.systemUserType = i }},

	{types.FieldUser, `u.user_id`, "u_user_id", func(o *ordinals, i int) { o.userId = i }},
	{types.FieldUser, `u.username`, "u_username", func(o *ordinals, i int) { o.username = i }},
	{types.FieldUser, `u.is_active`, "u_is_active", func(o *ordinals, i int) { o.userIsActive = i }},

	{types.FieldSubUnits, `t.parent_uuid`, "t_parent_uuid", func(o *ordinals, i int) { o.parentUuid = i }},
}

const personFields = types.FieldPersonName | types.FieldPersonDates | types.FieldPersonAddress
const organizationFields = types.FieldOrganizationType | types.FieldOrganizationContact | types.FieldOrganizationAddress

// buildQuery assembles the SQL for one (mask, filter) pair. Pure: no I/O,
// no shared state, so the result is safe to memoize forever.
func buildQuery(mask types.FieldMask, filter types.Filter) (*CompiledQuery, error) {
	_, isStream := filter.(types.StreamPage)
	if isStream && mask.Has(types.FieldSubUnits) {
		return nil, fmt.Errorf("%w: sub-unit expansion cannot be combined with a stream filter", ports.ErrInvalidFilter)
	}

	var sb strings.Builder
	sb.WriteString("WITH ")
	switch f := filter.(type) {
	case types.LookupOne:
		if err := writeLookupOneSeed(&sb, f); err != nil {
			return nil, err
		}
		writeTargets(&sb, mask.Has(types.FieldSubUnits))
	case types.LookupMultiple:
		if f.IsEmpty() {
			return nil, fmt.Errorf("%w: lookup names no identifiers", ports.ErrInvalidFilter)
		}
		writeLookupMultipleSeed(&sb, f)
		writeTargets(&sb, mask.Has(types.FieldSubUnits))
	case types.StreamPage:
		writeStreamTargets(&sb, len(f.PartyTypes) > 0)
	default:
		return nil, fmt.Errorf("%w: unsupported filter %T", ports.ErrInvalidFilter, filter)
	}

	q := &CompiledQuery{
		cols:            newOrdinals(),
		aggregatesUsers: mask.Has(types.FieldUserHistory),
		streamOrdered:   isStream,
	}

	sb.WriteString("\nSELECT")
	for _, spec := range columnSpecs {
		if spec.field != 0 && !mask.Has(spec.field) {
			continue
		}
		if q.numCols > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "\n    %s AS %s", spec.expr, spec.alias)
		spec.record(&q.cols, q.numCols)
		q.numCols++
	}

	sb.WriteString("\nFROM targets AS t")
	sb.WriteString("\nJOIN register.party AS p ON p.\"uuid\" = t.\"uuid\"")
	if mask&personFields != 0 {
		sb.WriteString("\nLEFT JOIN register.person AS f ON f.\"uuid\" = p.\"uuid\"")
	}
	if mask&organizationFields != 0 {
		sb.WriteString("\nLEFT JOIN register.organization AS o ON o.\"uuid\" = p.\"uuid\"")
	}
	if mask.Has(types.FieldUser) {
		sb.WriteString("\nLEFT JOIN register.\"user\" AS u ON u.party_uuid = p.\"uuid\"")
		if !mask.Has(types.FieldUserHistory) {
			sb.WriteString(" AND u.is_active")
		}
	}

	// Deterministic ordering: primary parties in resolution order, children
	// directly after their parent, and when user rows repeat a party the
	// row with the most specific user information leads.
	sb.WriteString("\nORDER BY t.sort_group, t.parent_sort, t.depth, t.child_sort")
	if mask.Has(types.FieldUserHistory) {
		sb.WriteString(", u.is_active DESC NULLS LAST, u.user_id DESC NULLS LAST")
	}

	q.SQL = sb.String()
	return q, nil
}

func writeLookupOneSeed(sb *strings.Builder, f types.LookupOne) error {
	sb.WriteString("seed AS (\n")
	switch f.Kind {
	case types.IdentifierUuid:
		sb.WriteString(`    SELECT p."uuid", p.version_id, 1 AS seed_group
    FROM register.party AS p
    WHERE p."uuid" = @party_uuid`)
	case types.IdentifierPartyId:
		sb.WriteString(`    SELECT p."uuid", p.version_id, 1 AS seed_group
    FROM register.party AS p
    WHERE p."id" = @party_id`)
	case types.IdentifierPerson:
		sb.WriteString(`    SELECT p."uuid", p.version_id, 1 AS seed_group
    FROM register.party AS p
    WHERE p.person_identifier = @person_identifier`)
	case types.IdentifierOrganization:
		sb.WriteString(`    SELECT p."uuid", p.version_id, 1 AS seed_group
    FROM register.party AS p
    WHERE p.organization_identifier = @organization_identifier`)
	case types.IdentifierUserId:
		// Historical ids stay resolvable for identity continuity.
		sb.WriteString(`    SELECT p."uuid", p.version_id, 1 AS seed_group
    FROM register.party AS p
    JOIN register."user" AS su ON su.party_uuid = p."uuid"
    WHERE su.user_id = @user_id`)
	case types.IdentifierUsername:
		sb.WriteString(`    SELECT p."uuid", p.version_id, 1 AS seed_group
    FROM register.party AS p
    JOIN register."user" AS su ON su.party_uuid = p."uuid"
    WHERE su.username = @username AND su.is_active`)
	default:
		return fmt.Errorf("%w: lookup names no identifiers", ports.ErrInvalidFilter)
	}
	sb.WriteString("\n),\n")
	return nil
}

// seedBranches maps each identifier set of a LookupMultiple to its seed
// sub-query. Group numbers fix the resolution order across sets and are
// formatted into the seed_group column of each branch.
var seedBranches = []struct {
	group   int
	present func(types.LookupMultiple) bool
	sql     string
}{
	{1, func(l types.LookupMultiple) bool { return len(l.Uuids) > 0 },
		`SELECT p."uuid", p.version_id, %d AS seed_group
    FROM register.party AS p
    WHERE p."uuid" = ANY (@party_uuids)`},
	{2, func(l types.LookupMultiple) bool { return len(l.PartyIds) > 0 },
		`SELECT p."uuid", p.version_id, %d AS seed_group
    FROM register.party AS p
    WHERE p."id" = ANY (@party_ids)`},
	{3, func(l types.LookupMultiple) bool { return len(l.PersonIdentifiers) > 0 },
		`SELECT p."uuid", p.version_id, %d AS seed_group
    FROM register.party AS p
    WHERE p.person_identifier = ANY (@person_identifiers)`},
	{4, func(l types.LookupMultiple) bool { return len(l.OrganizationIdentifiers) > 0 },
		`SELECT p."uuid", p.version_id, %d AS seed_group
    FROM register.party AS p
    WHERE p.organization_identifier = ANY (@organization_identifiers)`},
	{5, func(l types.LookupMultiple) bool { return len(l.UserIds) > 0 },
		`SELECT p."uuid", p.version_id, %d AS seed_group
    FROM register.party AS p
    JOIN register."user" AS su ON su.party_uuid = p."uuid"
    WHERE su.user_id = ANY (@user_ids)`},
}

func writeLookupMultipleSeed(sb *strings.Builder, f types.LookupMultiple) {
	sb.WriteString("seed AS (\n")
	first := true
	for _, branch := range seedBranches {
		if !branch.present(f) {
			continue
		}
		if !first {
			sb.WriteString("\n  UNION ALL\n")
		}
		first = false
		sb.WriteString("    ")
		fmt.Fprintf(sb, branch.sql, branch.group)
	}
	sb.WriteString("\n),\n")
}

// writeTargets emits the roots CTE (seed de-duplicated, keeping the
// earliest seed group) and, when requested, the sub_units CTE that follows
// main-unit role edges outward from each root.
func writeTargets(sb *strings.Builder, subUnits bool) {
	sb.WriteString(`roots AS (
    SELECT DISTINCT ON (s."uuid") s."uuid", s.version_id, s.seed_group
    FROM seed AS s
    ORDER BY s."uuid", s.seed_group
),
`)
	if subUnits {
		sb.WriteString(`sub_units AS (
    SELECT a.from_party AS "uuid", c.version_id, r."uuid" AS parent_uuid, r.seed_group, r.version_id AS parent_version
    FROM roots AS r
    JOIN register.external_role_assignment AS a
      ON a.to_party = r."uuid"
     AND a."source" = 'ccr'
     AND a.identifier IN (` + mainUnitRoleList + `)
    JOIN register.party AS c ON c."uuid" = a.from_party
),
targets AS (
    SELECT r."uuid", NULL::uuid AS parent_uuid, r.seed_group AS sort_group, r.version_id AS parent_sort, 0 AS depth, r.version_id AS child_sort
    FROM roots AS r
  UNION ALL
    SELECT s."uuid", s.parent_uuid, s.seed_group, s.parent_version, 1, s.version_id
    FROM sub_units AS s
)`)
		return
	}
	sb.WriteString(`targets AS (
    SELECT r."uuid", NULL::uuid AS parent_uuid, r.seed_group AS sort_group, r.version_id AS parent_sort, 0 AS depth, r.version_id AS child_sort
    FROM roots AS r
)`)
}

// writeStreamTargets emits the page CTE for a change-feed scan. The safe
// watermark is read in the same statement so the upper bound is atomic
// with the scan: no row at or below it can later be claimed by a still
// uncommitted transaction.
func writeStreamTargets(sb *strings.Builder, typed bool) {
	sb.WriteString(`watermark AS (
    SELECT register.safe_watermark('` + partyVersionSequence + `') AS version_id
),
targets AS (
    SELECT p."uuid", NULL::uuid AS parent_uuid, 0 AS sort_group, 0::bigint AS parent_sort, 0 AS depth, p.version_id AS child_sort
    FROM register.party AS p
    CROSS JOIN watermark AS w
    WHERE p.version_id > @from_exclusive
      AND p.version_id <= w.version_id`)
	if typed {
		sb.WriteString("\n      AND p.party_type = ANY (@party_types)")
	}
	sb.WriteString(`
    ORDER BY p.version_id
    LIMIT @page_size
)`)
}
