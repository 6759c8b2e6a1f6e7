package types

import (
	"time"

	"github.com/google/uuid"

	"partyreg/pkg/fieldvalue"
)

// PartyType discriminates the closed set of party variants. The set is
// fixed; a value outside it in the store is corrupt data.
type PartyType string

const (
	PartyTypePerson             PartyType = "person"
	PartyTypeOrganization       PartyType = "organization"
	PartyTypeSelfIdentifiedUser PartyType = "self-identified-user"
	PartyTypeSystemUser         PartyType = "system-user"
	PartyTypeEnterpriseUser     PartyType = "enterprise-user"
)

// Known reports whether t is one of the defined variants.
func (t PartyType) Known() bool {
	switch t {
	case PartyTypePerson, PartyTypeOrganization, PartyTypeSelfIdentifiedUser,
		PartyTypeSystemUser, PartyTypeEnterpriseUser:
		return true
	default:
		return false
	}
}

// Address is a postal address carried as a composite value on person and
// organization records. Stored as jsonb.
type Address struct {
	StreetAddress string `json:"streetAddress,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	City          string `json:"city,omitempty"`
	CountryCode   string `json:"countryCode,omitempty"`
}

// PartyRecord is the projection of a party. Identity fields (Uuid, Type,
// VersionId) are populated on every read; everything else is tri-state and
// only populated when the field mask requested it. Fields belonging to a
// different variant than the record's own type stay unset even when their
// columns were selected.
type PartyRecord struct {
	Uuid      uuid.UUID
	Type      PartyType
	VersionId uint64

	// Shared identity. PartyId is the legacy numeric identity; not every
	// variant carries one. PersonIdentifier and OrganizationIdentifier are
	// mutually exclusive and immutable once set.
	PartyId                fieldvalue.Value[int64]
	DisplayName            fieldvalue.Value[string]
	PersonIdentifier       fieldvalue.Value[string]
	OrganizationIdentifier fieldvalue.Value[string]
	CreatedAt              fieldvalue.Value[time.Time]
	ModifiedAt             fieldvalue.Value[time.Time]
	IsDeleted              fieldvalue.Value[bool]
	DeletedAt              fieldvalue.Value[time.Time]
	OwnerUuid              fieldvalue.Value[uuid.UUID]

	User fieldvalue.Value[PartyUserRecord]

	// Person variant.
	FirstName      fieldvalue.Value[string]
	MiddleName     fieldvalue.Value[string]
	LastName       fieldvalue.Value[string]
	ShortName      fieldvalue.Value[string]
	DateOfBirth    fieldvalue.Value[time.Time]
	DateOfDeath    fieldvalue.Value[time.Time]
	Address        fieldvalue.Value[Address]
	MailingAddress fieldvalue.Value[Address]

	// Organization variant.
	UnitStatus             fieldvalue.Value[string]
	UnitType               fieldvalue.Value[string]
	TelephoneNumber        fieldvalue.Value[string]
	EmailAddress           fieldvalue.Value[string]
	InternetAddress        fieldvalue.Value[string]
	OrgMailingAddress      fieldvalue.Value[Address]
	BusinessAddress        fieldvalue.Value[Address]
	ParentOrganizationUuid fieldvalue.Value[uuid.UUID]

	// System-user variant.
	SystemUserType fieldvalue.Value[string]
}
