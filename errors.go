package aegis

import "errors"

var (
	// ErrAccessDenied is returned by Enforce when a resolution denies.
	ErrAccessDenied = errors.New("aegis: access denied")

	// ErrUnknownPermission is returned when a permission name is not
	// registered in the catalog.
	ErrUnknownPermission = errors.New("aegis: unknown permission")

	// ErrRoleNotFound is returned when a role template cannot be found.
	ErrRoleNotFound = errors.New("aegis: role template not found")

	// ErrGrantNotFound is returned when a grant cannot be found.
	ErrGrantNotFound = errors.New("aegis: grant not found")

	// ErrInvitationNotFound is returned when an invitation or its token
	// cannot be found.
	ErrInvitationNotFound = errors.New("aegis: invitation not found")

	// ErrInvitationExpired is returned when an invitation's acceptance
	// window has lapsed.
	ErrInvitationExpired = errors.New("aegis: invitation expired")

	// ErrInvalidState is returned when an invitation transition is
	// attempted from a non-pending state.
	ErrInvalidState = errors.New("aegis: invitation not pending")

	// ErrImmutableRole is returned when trying to modify a system role
	// template.
	ErrImmutableRole = errors.New("aegis: system role template cannot be modified")

	// ErrDuplicateRole is returned when a role template slug already
	// exists in the tenant.
	ErrDuplicateRole = errors.New("aegis: role template already exists")

	// ErrConflict is returned when an optimistic-concurrency retry
	// budget is exhausted.
	ErrConflict = errors.New("aegis: concurrent modification, retries exhausted")

	// ErrInvalidConstraint is returned when a constraint payload is
	// malformed or its type is unknown.
	ErrInvalidConstraint = errors.New("aegis: invalid constraint")
)
