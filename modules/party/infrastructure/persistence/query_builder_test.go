package persistence

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
)

func TestGetMemoizesCompiledQuery(t *testing.T) {
	var cache queryCache
	mask := types.FieldDisplayName | types.FieldIdentifiers

	first, err := cache.Get(mask, types.ByUuid(uuid.MustParse("01900000-0000-7000-8000-000000000001")))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// Different bound value, same shape: must be the same instance.
	second, err := cache.Get(mask, types.ByUuid(uuid.MustParse("01900000-0000-7000-8000-000000000002")))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if first != second {
		t.Fatal("identical requests compiled twice")
	}

	other, err := cache.Get(mask|types.FieldOwner, types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if other == first {
		t.Fatal("distinct masks shared a compiled query")
	}
}

func TestGetMemoizesAcrossFilterShapes(t *testing.T) {
	var cache queryCache
	mask := types.FieldDisplayName

	multiA, err := cache.Get(mask, types.LookupMultiple{PartyIds: []int64{1, 2}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	multiB, err := cache.Get(mask, types.LookupMultiple{PartyIds: []int64{7}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if multiA != multiB {
		t.Fatal("same shape with different values rebuilt")
	}

	mixed, err := cache.Get(mask, types.LookupMultiple{PartyIds: []int64{7}, Uuids: []uuid.UUID{uuid.Nil}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if mixed == multiA {
		t.Fatal("different identifier sets shared a compiled query")
	}
}

func TestBuildColumnCounts(t *testing.T) {
	cases := []struct {
		name string
		mask types.FieldMask
		want int
	}{
		{"identity only", 0, 3},
		{"display name", types.FieldDisplayName, 4},
		{"identifiers", types.FieldIdentifiers, 6},
		{"person", types.FieldPersonName | types.FieldPersonDates | types.FieldPersonAddress, 11},
		{"organization", types.FieldOrganizationType | types.FieldOrganizationContact | types.FieldOrganizationAddress, 10},
		{"user", types.FieldUser, 6},
		{"user history implies user", types.FieldUserHistory, 6},
		{"everything", types.FieldAll, 32},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := buildQuery(tc.mask.Normalize(), types.ByPartyId(1))
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if q.numCols != tc.want {
				t.Fatalf("numCols=%d want=%d\n%s", q.numCols, tc.want, q.SQL)
			}
		})
	}
}

func TestBuildOrdinalsAreDenseAndStable(t *testing.T) {
	q, err := buildQuery(types.FieldAll.Normalize(), types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	seen := make(map[int]bool)
	for _, p := range q.cols.fields() {
		if *p < 0 || *p >= q.numCols {
			t.Fatalf("ordinal %d out of range [0,%d)", *p, q.numCols)
		}
		if seen[*p] {
			t.Fatalf("ordinal %d assigned twice", *p)
		}
		seen[*p] = true
	}
	if len(seen) != q.numCols {
		t.Fatalf("assigned %d ordinals for %d columns", len(seen), q.numCols)
	}
}

func TestBuildAbsentFieldsKeepSentinelOrdinal(t *testing.T) {
	q, err := buildQuery(types.FieldDisplayName, types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if q.cols.displayName < 0 {
		t.Fatal("requested field has no ordinal")
	}
	for name, ord := range map[string]int{
		"firstName":  q.cols.firstName,
		"unitType":   q.cols.unitType,
		"userId":     q.cols.userId,
		"parentUuid": q.cols.parentUuid,
	} {
		if ord != -1 {
			t.Fatalf("unrequested field %s has ordinal %d", name, ord)
		}
	}
}

func TestBuildLookupOneShapes(t *testing.T) {
	cases := []struct {
		filter types.LookupOne
		needle string
	}{
		{types.ByUuid(uuid.Nil), `p."uuid" = @party_uuid`},
		{types.ByPartyId(1), `p."id" = @party_id`},
		{types.ByPersonIdentifier("01025101037"), `p.person_identifier = @person_identifier`},
		{types.ByOrganizationIdentifier("123456785"), `p.organization_identifier = @organization_identifier`},
		{types.ByUserId(20002571), `su.user_id = @user_id`},
		{types.ByUsername("someuser"), `su.username = @username AND su.is_active`},
	}
	for _, tc := range cases {
		q, err := buildQuery(types.FieldDisplayName, tc.filter)
		if err != nil {
			t.Fatalf("filter=%v err=%v", tc.filter.Kind, err)
		}
		if !strings.Contains(q.SQL, tc.needle) {
			t.Fatalf("filter=%v missing %q in\n%s", tc.filter.Kind, tc.needle, q.SQL)
		}
	}
}

func TestBuildLookupMultipleUnionsSeeds(t *testing.T) {
	q, err := buildQuery(types.FieldDisplayName, types.LookupMultiple{
		Uuids:                   []uuid.UUID{uuid.Nil},
		OrganizationIdentifiers: []string{"123456785"},
		UserIds:                 []uint64{1},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := strings.Count(q.SQL, "UNION ALL"); got != 2 {
		t.Fatalf("UNION ALL count=%d\n%s", got, q.SQL)
	}
	for _, needle := range []string{
		`p."uuid" = ANY (@party_uuids)`,
		`p.organization_identifier = ANY (@organization_identifiers)`,
		`su.user_id = ANY (@user_ids)`,
		"1 AS seed_group",
		"4 AS seed_group",
		"5 AS seed_group",
	} {
		if !strings.Contains(q.SQL, needle) {
			t.Fatalf("missing %q in\n%s", needle, q.SQL)
		}
	}
	if strings.Contains(q.SQL, "@party_ids") || strings.Contains(q.SQL, "@person_identifiers") {
		t.Fatalf("empty identifier sets leaked into SQL:\n%s", q.SQL)
	}
	if strings.Contains(q.SQL, "%") {
		t.Fatalf("unformatted verb left in SQL:\n%s", q.SQL)
	}
}

func TestBuildEmptyLookupRejected(t *testing.T) {
	_, err := buildQuery(types.FieldDisplayName, types.LookupMultiple{})
	if !errors.Is(err, ports.ErrInvalidFilter) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildSubUnitsWithStreamRejected(t *testing.T) {
	_, err := buildQuery(types.FieldSubUnits, types.StreamPage{Limit: 10})
	if !errors.Is(err, ports.ErrInvalidFilter) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildSubUnitsFollowsRoleEdges(t *testing.T) {
	q, err := buildQuery(types.FieldSubUnits|types.FieldOrganizationType, types.ByOrganizationIdentifier("123456785"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	for _, needle := range []string{
		"sub_units AS (",
		`a."source" = 'ccr'`,
		"'hovedenhet', 'ikke-naeringsdrivende-hovedenhet'",
		"t.parent_uuid AS t_parent_uuid",
	} {
		if !strings.Contains(q.SQL, needle) {
			t.Fatalf("missing %q in\n%s", needle, q.SQL)
		}
	}
	if q.cols.parentUuid < 0 {
		t.Fatal("parent uuid ordinal not recorded")
	}
}

func TestBuildStreamBoundsAndOrder(t *testing.T) {
	q, err := buildQuery(types.FieldDisplayName, types.StreamPage{FromExclusive: 5, Limit: 100})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	for _, needle := range []string{
		`register.safe_watermark('register.party_version_id_seq')`,
		"p.version_id > @from_exclusive",
		"p.version_id <= w.version_id",
		"LIMIT @page_size",
		"ORDER BY t.sort_group, t.parent_sort, t.depth, t.child_sort",
	} {
		if !strings.Contains(q.SQL, needle) {
			t.Fatalf("missing %q in\n%s", needle, q.SQL)
		}
	}
	if strings.Contains(q.SQL, "@party_types") {
		t.Fatalf("untyped stream binds party types:\n%s", q.SQL)
	}

	typed, err := buildQuery(types.FieldDisplayName, types.StreamPage{Limit: 100, PartyTypes: []types.PartyType{types.PartyTypePerson}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(typed.SQL, "p.party_type = ANY (@party_types)") {
		t.Fatalf("typed stream missing type predicate:\n%s", typed.SQL)
	}
}

func TestBuildUserHistoryOrdering(t *testing.T) {
	q, err := buildQuery(types.FieldUserHistory.Normalize(), types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(q.SQL, "u.is_active DESC NULLS LAST, u.user_id DESC NULLS LAST") {
		t.Fatalf("history query missing user ordering:\n%s", q.SQL)
	}
	if !q.aggregatesUsers {
		t.Fatal("aggregatesUsers not set")
	}

	active, err := buildQuery(types.FieldUser, types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(active.SQL, "AND u.is_active") {
		t.Fatalf("active-only user join missing predicate:\n%s", active.SQL)
	}
	if active.aggregatesUsers {
		t.Fatal("active-only query aggregates")
	}
}

func TestBuildJoinsOnlyRequestedTables(t *testing.T) {
	q, err := buildQuery(types.FieldDisplayName, types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	for _, needle := range []string{"register.person", "register.organization", `register."user"`} {
		if strings.Contains(q.SQL, needle) {
			t.Fatalf("unrequested join on %s:\n%s", needle, q.SQL)
		}
	}

	q, err = buildQuery(types.FieldPersonDates, types.ByUuid(uuid.Nil))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(q.SQL, "LEFT JOIN register.person") {
		t.Fatalf("person join missing:\n%s", q.SQL)
	}
	if strings.Contains(q.SQL, "register.organization") {
		t.Fatalf("organization joined without organization fields:\n%s", q.SQL)
	}
}
