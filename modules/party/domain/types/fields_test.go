package types

import (
	"strings"
	"testing"
)

func TestFieldMaskHas(t *testing.T) {
	m := FieldDisplayName | FieldPersonName
	if !m.Has(FieldDisplayName) || !m.Has(FieldPersonName) {
		t.Fatalf("mask=%s", m)
	}
	if m.Has(FieldOwner) {
		t.Fatalf("mask=%s claims owner", m)
	}
	if !m.Has(FieldDisplayName | FieldPersonName) {
		t.Fatal("combined Has failed")
	}
}

func TestFieldMaskNormalize(t *testing.T) {
	m := FieldUserHistory.Normalize()
	if !m.Has(FieldUser) {
		t.Fatalf("history did not imply user: %s", m)
	}
	if got := FieldDisplayName.Normalize(); got != FieldDisplayName {
		t.Fatalf("normalize changed %s to %s", FieldDisplayName, got)
	}
}

func TestFieldMaskString(t *testing.T) {
	if got := FieldMask(0).String(); got != "none" {
		t.Fatalf("got %q", got)
	}
	got := (FieldDisplayName | FieldSubUnits).String()
	if got != "display-name,sub-units" {
		t.Fatalf("got %q", got)
	}
	all := FieldAll.String()
	for _, name := range fieldNames {
		if !strings.Contains(all, name) {
			t.Fatalf("FieldAll missing %q: %s", name, all)
		}
	}
}

func TestFilterCacheKeys(t *testing.T) {
	cases := []struct {
		filter Filter
		want   string
	}{
		{ByUuid([16]byte{1}), "one:uuid"},
		{ByPartyId(50001337), "one:party-id"},
		{ByPersonIdentifier("01025101037"), "one:person-identifier"},
		{ByOrganizationIdentifier("123456785"), "one:organization-identifier"},
		{ByUserId(42), "one:user-id"},
		{ByUsername("someuser"), "one:username"},
		{LookupMultiple{PartyIds: []int64{1}}, "many:i"},
		{LookupMultiple{PartyIds: []int64{1}, UserIds: []uint64{9}}, "many:id"},
		{StreamPage{FromExclusive: 10, Limit: 100}, "stream"},
		{StreamPage{Limit: 100, PartyTypes: []PartyType{PartyTypePerson}}, "stream:typed"},
	}
	for _, tc := range cases {
		if got := tc.filter.CacheKey(); got != tc.want {
			t.Fatalf("key=%q want=%q", got, tc.want)
		}
	}
}

func TestLookupMultipleIsEmpty(t *testing.T) {
	if !(LookupMultiple{}).IsEmpty() {
		t.Fatal("zero lookup not empty")
	}
	if (LookupMultiple{PersonIdentifiers: []string{"01025101037"}}).IsEmpty() {
		t.Fatal("non-empty lookup reported empty")
	}
}

func TestPartyTypeKnown(t *testing.T) {
	for _, pt := range []PartyType{
		PartyTypePerson, PartyTypeOrganization, PartyTypeSelfIdentifiedUser,
		PartyTypeSystemUser, PartyTypeEnterpriseUser,
	} {
		if !pt.Known() {
			t.Fatalf("%s not known", pt)
		}
	}
	if PartyType("robot").Known() || PartyType("").Known() {
		t.Fatal("unknown type reported known")
	}
}
