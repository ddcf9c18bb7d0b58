package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/aegis"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, aegis.ErrUnknownPermission) || errors.Is(err, aegis.ErrInvalidConstraint) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, aegis.ErrImmutableRole) || errors.Is(err, aegis.ErrDuplicateRole) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, aegis.ErrInvalidState) || errors.Is(err, aegis.ErrInvitationExpired) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, aegis.ErrConflict) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, aegis.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, aegis.ErrRoleNotFound) ||
		errors.Is(err, aegis.ErrGrantNotFound) ||
		errors.Is(err, aegis.ErrInvitationNotFound)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
