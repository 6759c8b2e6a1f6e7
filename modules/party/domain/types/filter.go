package types

import (
	"strings"

	"github.com/google/uuid"
)

// Filter selects which parties a projection query resolves. Implementations
// form a closed set: LookupOne, LookupMultiple and StreamPage.
type Filter interface {
	// CacheKey identifies the shape of the filter, excluding bound values.
	// Two filters with equal cache keys compile to identical SQL.
	CacheKey() string

	filter()
}

// IdentifierKind names the identifier a LookupOne resolves.
type IdentifierKind uint8

const (
	IdentifierUuid IdentifierKind = iota + 1
	IdentifierPartyId
	IdentifierPerson
	IdentifierOrganization
	IdentifierUserId
	IdentifierUsername
)

var identifierKindNames = map[IdentifierKind]string{
	IdentifierUuid:         "uuid",
	IdentifierPartyId:      "party-id",
	IdentifierPerson:       "person-identifier",
	IdentifierOrganization: "organization-identifier",
	IdentifierUserId:       "user-id",
	IdentifierUsername:     "username",
}

func (k IdentifierKind) String() string {
	if name, ok := identifierKindNames[k]; ok {
		return name
	}
	return "invalid"
}

// LookupOne resolves exactly one identifier to at most one party.
type LookupOne struct {
	Kind IdentifierKind

	Uuid       uuid.UUID
	PartyId    int64
	Identifier string
	UserId     uint64
}

func (LookupOne) filter() {}

func (l LookupOne) CacheKey() string { return "one:" + l.Kind.String() }

func ByUuid(u uuid.UUID) LookupOne { return LookupOne{Kind: IdentifierUuid, Uuid: u} }
func ByPartyId(id int64) LookupOne { return LookupOne{Kind: IdentifierPartyId, PartyId: id} }
func ByPersonIdentifier(ident string) LookupOne {
	return LookupOne{Kind: IdentifierPerson, Identifier: ident}
}
func ByOrganizationIdentifier(ident string) LookupOne {
	return LookupOne{Kind: IdentifierOrganization, Identifier: ident}
}
func ByUserId(id uint64) LookupOne { return LookupOne{Kind: IdentifierUserId, UserId: id} }
func ByUsername(name string) LookupOne {
	return LookupOne{Kind: IdentifierUsername, Identifier: name}
}

// LookupMultiple resolves one or more identifier sets, OR-combined. Each
// non-empty set becomes its own seed sub-query.
type LookupMultiple struct {
	Uuids                   []uuid.UUID
	PartyIds                []int64
	PersonIdentifiers       []string
	OrganizationIdentifiers []string
	UserIds                 []uint64
}

func (LookupMultiple) filter() {}

// IsEmpty reports whether no identifier set has any members. An empty
// lookup resolves to an empty result without touching the store.
func (l LookupMultiple) IsEmpty() bool {
	return len(l.Uuids) == 0 && len(l.PartyIds) == 0 && len(l.PersonIdentifiers) == 0 &&
		len(l.OrganizationIdentifiers) == 0 && len(l.UserIds) == 0
}

func (l LookupMultiple) CacheKey() string {
	var sb strings.Builder
	sb.WriteString("many:")
	if len(l.Uuids) > 0 {
		sb.WriteString("u")
	}
	if len(l.PartyIds) > 0 {
		sb.WriteString("i")
	}
	if len(l.PersonIdentifiers) > 0 {
		sb.WriteString("p")
	}
	if len(l.OrganizationIdentifiers) > 0 {
		sb.WriteString("o")
	}
	if len(l.UserIds) > 0 {
		sb.WriteString("d")
	}
	return sb.String()
}

// StreamPage bounds one page of the append-only change feed. FromExclusive
// is the last version the caller has already seen; the page never reaches
// past the store's safe watermark.
type StreamPage struct {
	FromExclusive uint64
	Limit         uint16
	PartyTypes    []PartyType
}

func (StreamPage) filter() {}

func (p StreamPage) CacheKey() string {
	if len(p.PartyTypes) > 0 {
		return "stream:typed"
	}
	return "stream"
}
