// Package services exposes the party registry's application surface: thin
// facades over the persistence ports plus the cross-store operations that
// do not belong in any single store.
package services

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
	"partyreg/pkg/uuidv7"
)

type PartyService struct {
	store ports.PartyStore
	roles ports.RoleAssignmentStore
	defs  ports.RoleDefinitionProvider
	log   zerolog.Logger
}

func NewPartyService(store ports.PartyStore, roles ports.RoleAssignmentStore, defs ports.RoleDefinitionProvider, log zerolog.Logger) *PartyService {
	return &PartyService{store: store, roles: roles, defs: defs, log: log}
}

func (s *PartyService) GetParty(ctx context.Context, partyUuid uuid.UUID, fields types.FieldMask) (*types.PartyRecord, error) {
	return s.store.GetByUuid(ctx, partyUuid, fields)
}

func (s *PartyService) GetPartyByIdentifier(ctx context.Context, lookup types.LookupOne, fields types.FieldMask) (*types.PartyRecord, error) {
	return s.store.GetByIdentifier(ctx, lookup, fields)
}

func (s *PartyService) LookupParties(ctx context.Context, lookup types.LookupMultiple, fields types.FieldMask) (iter.Seq2[*types.PartyRecord, error], error) {
	return s.store.LookupMany(ctx, lookup, fields)
}

// StreamParties returns one change-feed page. An empty page means the
// caller is caught up with the watermark, not that the feed ended.
func (s *PartyService) StreamParties(ctx context.Context, page types.StreamPage, fields types.FieldMask) ([]*types.PartyRecord, error) {
	return s.store.GetStream(ctx, page, fields)
}

// CreateParty registers a record that does not exist yet under a fresh
// time-ordered uuid, overwriting whatever uuid the record carried.
func (s *PartyService) CreateParty(ctx context.Context, record *types.PartyRecord) (*types.PartyRecord, error) {
	id, err := uuidv7.New()
	if err != nil {
		return nil, err
	}
	record.Uuid = id
	return s.UpsertParty(ctx, record)
}

func (s *PartyService) UpsertParty(ctx context.Context, record *types.PartyRecord) (*types.PartyRecord, error) {
	result, err := s.store.UpsertParty(ctx, record)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Stringer("party", result.Uuid).
		Str("type", string(result.Type)).
		Uint64("version", result.VersionId).
		Msg("party upserted")
	return result, nil
}

func (s *PartyService) UpsertPartyUser(ctx context.Context, cmd types.PartyUserCommand) (uint64, error) {
	version, err := s.store.UpsertPartyUser(ctx, cmd)
	if err != nil {
		return 0, err
	}
	s.log.Info().
		Stringer("party", cmd.PartyUuid).
		Uint64("user_id", cmd.UserId).
		Bool("active", cmd.Active).
		Uint64("version", version).
		Msg("party user upserted")
	return version, nil
}

func (s *PartyService) GetRoleAssignments(ctx context.Context, query types.RoleAssignmentQuery) ([]types.ExternalRoleAssignment, error) {
	return s.roles.GetRoleAssignments(ctx, query)
}

// ReplaceRoleAssignments sets the desired assignment state for one
// (party, source) pair. Every desired identifier must name a known role
// definition; an unknown one rejects the whole command before any state
// changes.
func (s *PartyService) ReplaceRoleAssignments(ctx context.Context, cmd types.RoleAssignmentCommand) ([]types.ExternalRoleAssignmentEvent, error) {
	for _, target := range cmd.Desired {
		_, ok, err := s.defs.TryGet(ctx, cmd.Source, target.Identifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ports.ErrRoleDefinitionNotFound, cmd.Source, target.Identifier)
		}
	}

	events, err := s.roles.UpsertRoleAssignments(ctx, cmd)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Stringer("party", cmd.FromParty).
		Str("source", string(cmd.Source)).
		Int("events", len(events)).
		Msg("role assignments replaced")
	return events, nil
}

// ResolveRoleDefinition looks up one role definition from the reference
// snapshot.
func (s *PartyService) ResolveRoleDefinition(ctx context.Context, source types.ExternalRoleSource, identifier string) (*types.ExternalRoleDefinition, error) {
	def, ok, err := s.defs.TryGet(ctx, source, identifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ports.ErrRoleDefinitionNotFound, source, identifier)
	}
	return def, nil
}
