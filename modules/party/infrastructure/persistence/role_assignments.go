package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
	"partyreg/pkg/problems"
)

// GetRoleAssignments lists the role edges touching one party, optionally
// narrowed by source and identifier and optionally joined with the role
// definitions.
func (s *PartyPGStore) GetRoleAssignments(ctx context.Context, query types.RoleAssignmentQuery) ([]types.ExternalRoleAssignment, error) {
	if query.Party == uuid.Nil {
		return nil, fmt.Errorf("%w: role assignment query names no party", ports.ErrInvalidFilter)
	}
	if query.Identifier != "" && query.Source == "" {
		return nil, fmt.Errorf("%w: role identifier filter requires a source", ports.ErrInvalidFilter)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT a."source", a.identifier, a.from_party, a.to_party`)
	if query.IncludeDefinitions {
		sb.WriteString(`, d."name", d.description, d.code`)
	}
	sb.WriteString("\nFROM register.external_role_assignment AS a")
	if query.IncludeDefinitions {
		sb.WriteString("\nJOIN register.external_role_definition AS d ON d.\"source\" = a.\"source\" AND d.identifier = a.identifier")
	}
	switch query.Direction {
	case types.RoleAssignmentsFrom:
		sb.WriteString("\nWHERE a.from_party = @party")
	case types.RoleAssignmentsTo:
		sb.WriteString("\nWHERE a.to_party = @party")
	default:
		return nil, fmt.Errorf("%w: role assignment query has no direction", ports.ErrInvalidFilter)
	}
	args := pgx.NamedArgs{"party": query.Party}
	if query.Source != "" {
		sb.WriteString(` AND a."source" = @source`)
		args["source"] = string(query.Source)
	}
	if query.Identifier != "" {
		sb.WriteString(" AND a.identifier = @identifier")
		args["identifier"] = query.Identifier
	}
	sb.WriteString("\nORDER BY a.\"source\", a.identifier, a.to_party")

	rows, err := s.db.Query(ctx, sb.String(), args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.ExternalRoleAssignment, 0)
	for rows.Next() {
		var (
			a    types.ExternalRoleAssignment
			src  string
			name []byte
			desc []byte
			code *string
		)
		dests := []any{&src, &a.Identifier, &a.FromParty, &a.ToParty}
		if query.IncludeDefinitions {
			dests = append(dests, &name, &desc, &code)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		a.Source = types.ExternalRoleSource(src)
		if query.IncludeDefinitions {
			def := &types.ExternalRoleDefinition{
				Source:     a.Source,
				Identifier: a.Identifier,
				Code:       code,
			}
			if err := decodeTranslations(name, &def.Name); err != nil {
				return nil, err
			}
			if err := decodeTranslations(desc, &def.Description); err != nil {
				return nil, err
			}
			a.Definition = def
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertRoleAssignments replaces the assignment set for one (fromParty,
// source) pair through the store-side diff function, which emits one
// added/removed event per difference against the stored set. The function
// records the event list under the command id; replaying a known command
// returns the original list verbatim without touching state, so upstream
// at-least-once redelivery is safe.
func (s *PartyPGStore) UpsertRoleAssignments(ctx context.Context, cmd types.RoleAssignmentCommand) ([]types.ExternalRoleAssignmentEvent, error) {
	if cmd.CommandId == uuid.Nil {
		return nil, problems.NewInvalidUpdate("command_id", "role assignment command id is required")
	}
	if cmd.FromParty == uuid.Nil {
		return nil, problems.NewInvalidUpdate("from_party", "role assignment source party is required")
	}
	if cmd.Source == "" {
		return nil, problems.NewInvalidUpdate("source", "role assignment source registry is required")
	}

	identifiers := make([]string, len(cmd.Desired))
	toParties := make([]uuid.UUID, len(cmd.Desired))
	for i, target := range cmd.Desired {
		identifiers[i] = target.Identifier
		toParties[i] = target.ToParty
	}

	rows, err := s.db.Query(ctx,
		`SELECT version_id, is_added, identifier, to_party
		 FROM register.upsert_external_role_assignments(@command_id, @from_party, @source, @identifiers, @to_parties)`,
		pgx.NamedArgs{
			"command_id":  cmd.CommandId,
			"from_party":  cmd.FromParty,
			"source":      string(cmd.Source),
			"identifiers": identifiers,
			"to_parties":  toParties,
		},
	)
	if err != nil {
		return nil, translatePartyError(err)
	}
	defer rows.Close()

	events := make([]types.ExternalRoleAssignmentEvent, 0)
	for rows.Next() {
		var (
			version int64
			added   bool
			event   types.ExternalRoleAssignmentEvent
		)
		if err := rows.Scan(&version, &added, &event.Identifier, &event.ToParty); err != nil {
			return nil, err
		}
		event.VersionId = uint64(version)
		event.Type = types.RoleAssignmentRemoved
		if added {
			event.Type = types.RoleAssignmentAdded
		}
		event.Source = cmd.Source
		event.FromParty = cmd.FromParty
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePartyError(err)
	}
	return events, nil
}
