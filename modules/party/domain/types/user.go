package types

import "github.com/google/uuid"

// PartyUserRecord carries the user identity attached to a party. At most
// one user id is active at a time; UserIds lists every id ever active for
// the party, most recent first.
type PartyUserRecord struct {
	UserId   *uint64
	Username *string
	UserIds  []uint64
}

// PartyUserCommand activates or deactivates a user id on a party.
// Activation retires any currently active id and advances the party's
// version; deactivation of the active id does not represent new
// externally-visible party state and leaves the version untouched.
type PartyUserCommand struct {
	PartyUuid uuid.UUID
	UserId    uint64
	Username  *string
	Active    bool
}
