package ports

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"

	"partyreg/modules/party/domain/types"
)

var (
	ErrPartyNotFound          = errors.New("party_not_found")
	ErrRoleDefinitionNotFound = errors.New("role_definition_not_found")
	ErrInvalidFilter          = errors.New("invalid_filter")
	ErrUnknownPartyType       = errors.New("unknown_party_type")
)

type PartyStore interface {
	GetByUuid(ctx context.Context, partyUuid uuid.UUID, fields types.FieldMask) (*types.PartyRecord, error)
	GetByIdentifier(ctx context.Context, lookup types.LookupOne, fields types.FieldMask) (*types.PartyRecord, error)
	LookupMany(ctx context.Context, lookup types.LookupMultiple, fields types.FieldMask) (iter.Seq2[*types.PartyRecord, error], error)
	GetStream(ctx context.Context, page types.StreamPage, fields types.FieldMask) ([]*types.PartyRecord, error)
	UpsertParty(ctx context.Context, record *types.PartyRecord) (*types.PartyRecord, error)
	UpsertPartyUser(ctx context.Context, cmd types.PartyUserCommand) (uint64, error)
}

type RoleAssignmentStore interface {
	GetRoleAssignments(ctx context.Context, query types.RoleAssignmentQuery) ([]types.ExternalRoleAssignment, error)
	UpsertRoleAssignments(ctx context.Context, cmd types.RoleAssignmentCommand) ([]types.ExternalRoleAssignmentEvent, error)
}

// RoleDefinitionProvider looks up role reference data from the in-process
// snapshot, loading it on first use.
type RoleDefinitionProvider interface {
	TryGet(ctx context.Context, source types.ExternalRoleSource, identifier string) (*types.ExternalRoleDefinition, bool, error)
}
