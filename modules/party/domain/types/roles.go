package types

import "github.com/google/uuid"

// ExternalRoleSource names the registry a role definition originates from.
type ExternalRoleSource string

// ExternalRoleSourceCCR is the central coordinating register for legal
// entities, the source of the main-unit roles sub-unit expansion follows.
const ExternalRoleSourceCCR ExternalRoleSource = "ccr"

// ExternalRoleDefinition is append-only reference data describing a role.
// Name and Description are localized, keyed by BCP-47 language tag.
type ExternalRoleDefinition struct {
	Source      ExternalRoleSource
	Identifier  string
	Name        map[string]string
	Description map[string]string
	Code        *string
}

// ExternalRoleAssignment is a directed role edge between two parties,
// optionally joined with its definition.
type ExternalRoleAssignment struct {
	Source     ExternalRoleSource
	Identifier string
	FromParty  uuid.UUID
	ToParty    uuid.UUID
	Definition *ExternalRoleDefinition
}

// RoleAssignmentEventType discriminates diff events.
type RoleAssignmentEventType string

const (
	RoleAssignmentAdded   RoleAssignmentEventType = "added"
	RoleAssignmentRemoved RoleAssignmentEventType = "removed"
)

// ExternalRoleAssignmentEvent is an immutable fact in the append-only role
// event log, produced by the assignment diff.
type ExternalRoleAssignmentEvent struct {
	VersionId  uint64
	Type       RoleAssignmentEventType
	Source     ExternalRoleSource
	Identifier string
	FromParty  uuid.UUID
	ToParty    uuid.UUID
}

// RoleAssignmentDirection selects which end of the edge a query matches.
type RoleAssignmentDirection uint8

const (
	RoleAssignmentsFrom RoleAssignmentDirection = iota + 1
	RoleAssignmentsTo
)

// RoleAssignmentQuery selects role assignments touching one party.
// Source and Identifier narrow the match when non-zero; Identifier
// requires Source.
type RoleAssignmentQuery struct {
	Direction          RoleAssignmentDirection
	Party              uuid.UUID
	Source             ExternalRoleSource
	Identifier         string
	IncludeDefinitions bool
}

// RoleAssignmentTarget is one desired assignment in an upsert command.
type RoleAssignmentTarget struct {
	Identifier string
	ToParty    uuid.UUID
}

// RoleAssignmentCommand replaces the full assignment set for one
// (fromParty, source) pair. CommandId makes the mutation idempotent:
// replaying a known command returns the originally recorded events.
type RoleAssignmentCommand struct {
	CommandId uuid.UUID
	FromParty uuid.UUID
	Source    ExternalRoleSource
	Desired   []RoleAssignmentTarget
}
