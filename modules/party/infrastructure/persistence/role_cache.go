package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"partyreg/modules/party/domain/ports"
	"partyreg/modules/party/domain/types"
)

type roleKey struct {
	source     types.ExternalRoleSource
	identifier string
}

type roleSnapshot map[roleKey]*types.ExternalRoleDefinition

// roleLoad is one in-flight snapshot load. Every caller that arrives while
// it runs attaches to the same load; done is closed exactly once after
// snapshot or err is set.
type roleLoad struct {
	done     chan struct{}
	snapshot roleSnapshot
	err      error
}

// roleCacheState is one of three states: empty (both fields nil), loading
// (load set) or ready (snapshot set). Transitions are CAS-only.
type roleCacheState struct {
	load     *roleLoad
	snapshot roleSnapshot
}

var roleCacheEmpty = &roleCacheState{}

// RoleDefinitionCache is a single-flight, process-lifetime snapshot of the
// external role definition table. The table is append-only reference data
// that only changes with a redeploy, so there is no TTL and no
// invalidation: once ready, lookups are read-only and lock-free.
type RoleDefinitionCache struct {
	state    atomic.Pointer[roleCacheState]
	db       querier
	lifetime context.Context
	loadFn   func(context.Context) (roleSnapshot, error)
}

// NewRoleDefinitionCache builds an empty cache. lifetime scopes the
// internal load connection: shutting the process down cancels any cold
// load in flight, which behaves exactly like a failed load.
func NewRoleDefinitionCache(lifetime context.Context, db querier) *RoleDefinitionCache {
	c := &RoleDefinitionCache{db: db, lifetime: lifetime}
	c.loadFn = c.loadSnapshot
	c.state.Store(roleCacheEmpty)
	return c
}

// newRoleDefinitionCacheWithLoader substitutes the snapshot loader; used
// by tests to count and fail loads without a store.
func newRoleDefinitionCacheWithLoader(lifetime context.Context, loadFn func(context.Context) (roleSnapshot, error)) *RoleDefinitionCache {
	c := &RoleDefinitionCache{lifetime: lifetime, loadFn: loadFn}
	c.state.Store(roleCacheEmpty)
	return c
}

var _ ports.RoleDefinitionProvider = (*RoleDefinitionCache)(nil)

// TryGet looks up one role definition, loading the snapshot on first use.
func (c *RoleDefinitionCache) TryGet(ctx context.Context, source types.ExternalRoleSource, identifier string) (*types.ExternalRoleDefinition, bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	def, ok := snap[roleKey{source: source, identifier: identifier}]
	return def, ok, nil
}

// snapshot returns the ready snapshot, joining or starting a load as
// needed. Concurrent cold-start callers coalesce onto one query; a failed
// load resets the cache so a later caller retries.
func (c *RoleDefinitionCache) snapshot(ctx context.Context) (roleSnapshot, error) {
	for {
		st := c.state.Load()
		switch {
		case st.snapshot != nil:
			return st.snapshot, nil

		case st.load != nil:
			return c.awaitLoad(ctx, st.load)

		default:
			load := &roleLoad{done: make(chan struct{})}
			next := &roleCacheState{load: load}
			if !c.state.CompareAndSwap(st, next) {
				continue
			}
			go c.runLoad(next, load)
			return c.awaitLoad(ctx, load)
		}
	}
}

// awaitLoad blocks until the load finishes or ctx is cancelled. Every
// attached caller observes the result of the load it waited on, even if a
// sibling already replaced the state by the time it wakes.
func (c *RoleDefinitionCache) awaitLoad(ctx context.Context, load *roleLoad) (roleSnapshot, error) {
	select {
	case <-load.done:
		if load.err != nil {
			return nil, load.err
		}
		return load.snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runLoad performs the I/O outside any lock and commits the result with a
// CAS against the exact state that started it: if the cache was reset or
// replaced in the meantime, the result is discarded in favor of the newer
// state instead of overwriting it.
func (c *RoleDefinitionCache) runLoad(owned *roleCacheState, load *roleLoad) {
	snap, err := c.loadFn(c.lifetime)
	if err != nil {
		load.err = err
		roleCacheLoads.WithLabelValues("error").Inc()
		c.state.CompareAndSwap(owned, roleCacheEmpty)
		close(load.done)
		return
	}
	load.snapshot = snap
	roleCacheLoads.WithLabelValues("ok").Inc()
	c.state.CompareAndSwap(owned, &roleCacheState{snapshot: snap})
	close(load.done)
}

func (c *RoleDefinitionCache) loadSnapshot(ctx context.Context) (roleSnapshot, error) {
	rows, err := c.db.Query(ctx,
		`SELECT "source", identifier, "name", description, code
		 FROM register.external_role_definition`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := make(roleSnapshot)
	for rows.Next() {
		var (
			src  string
			def  types.ExternalRoleDefinition
			name []byte
			desc []byte
		)
		if err := rows.Scan(&src, &def.Identifier, &name, &desc, &def.Code); err != nil {
			return nil, err
		}
		def.Source = types.ExternalRoleSource(src)
		if err := decodeTranslations(name, &def.Name); err != nil {
			return nil, err
		}
		if err := decodeTranslations(desc, &def.Description); err != nil {
			return nil, err
		}
		snap[roleKey{source: def.Source, identifier: def.Identifier}] = &def
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// decodeTranslations unpacks a jsonb column of language-tag keyed strings.
func decodeTranslations(raw []byte, dst *map[string]string) error {
	if raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode translations: %w", err)
	}
	return nil
}
