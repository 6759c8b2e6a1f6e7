package types

import "strings"

// FieldMask selects which optional party attributes a query populates.
// Identity columns (uuid, type, version) are always selected and are not
// represented in the mask.
type FieldMask uint64

const (
	// FieldIdentifiers selects the legacy party id and the person and
	// organization identifiers.
	FieldIdentifiers FieldMask = 1 << iota
	FieldDisplayName
	FieldCreatedAt
	FieldModifiedAt
	// FieldDeleted selects the soft-delete flag and timestamp.
	FieldDeleted
	FieldOwner

	// Person variant.
	FieldPersonName
	FieldPersonDates
	FieldPersonAddress

	// Organization variant.
	FieldOrganizationType
	FieldOrganizationContact
	FieldOrganizationAddress

	// System-user variant.
	FieldSystemUserType

	// FieldUser selects the active user id and username.
	FieldUser
	// FieldUserHistory additionally aggregates every user id ever active
	// for the party. Implies FieldUser.
	FieldUserHistory

	// FieldSubUnits expands sub-unit organizations reachable through
	// main-unit role assignments, attaching them after their parent with
	// ParentOrganizationUuid populated. Not valid for stream filters.
	FieldSubUnits

	fieldMaskEnd
)

// FieldAll selects every defined field.
const FieldAll = fieldMaskEnd - 1

var fieldNames = map[FieldMask]string{
	FieldIdentifiers:         "identifiers",
	FieldDisplayName:         "display-name",
	FieldCreatedAt:           "created-at",
	FieldModifiedAt:          "modified-at",
	FieldDeleted:             "deleted",
	FieldOwner:               "owner",
	FieldPersonName:          "person-name",
	FieldPersonDates:         "person-dates",
	FieldPersonAddress:       "person-address",
	FieldOrganizationType:    "organization-type",
	FieldOrganizationContact: "organization-contact",
	FieldOrganizationAddress: "organization-address",
	FieldSystemUserType:      "system-user-type",
	FieldUser:                "user",
	FieldUserHistory:         "user-history",
	FieldSubUnits:            "sub-units",
}

// Has reports whether every bit of f is set in m.
func (m FieldMask) Has(f FieldMask) bool { return m&f == f }

// Normalize resolves implied bits: user history always selects the user
// columns it aggregates over.
func (m FieldMask) Normalize() FieldMask {
	if m.Has(FieldUserHistory) {
		m |= FieldUser
	}
	return m
}

func (m FieldMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for bit := FieldMask(1); bit < fieldMaskEnd; bit <<= 1 {
		if m.Has(bit) {
			parts = append(parts, fieldNames[bit])
		}
	}
	return strings.Join(parts, ",")
}
