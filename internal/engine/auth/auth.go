// Package auth holds password hashing and the permission rules for movement workflows.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"movetrack/internal/domain"
)

// BcryptCost is the cost used for new password hashes.
var BcryptCost = 12

const minPasswordLength = 8

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

const (
	PermAdmin              = "admin"
	PermManageDismissals   = "can_manage_dismissals"
	PermManageTransfersEtc = "can_manage_transfers_etc"
)

func HashPassword(password string) (string, error) {
	if len(strings.TrimSpace(password)) < minPasswordLength {
		return "", &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("must have at least %d characters", minPasswordLength)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword returns ErrInvalidCredentials when password does not match hash.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func RequireAdmin(u domain.User) error {
	if !u.IsAdmin() {
		return ForbiddenError{Permission: PermAdmin}
	}
	return nil
}

// PermissionFor names the capability needed to manage movements of type t.
func PermissionFor(t domain.MovementType) string {
	if t == domain.TypeDismissal {
		return PermManageDismissals
	}
	return PermManageTransfersEtc
}

// CanManage checks that u may create or edit movements of type t.
func CanManage(u domain.User, t domain.MovementType) error {
	if err := RequireAdmin(u); err != nil {
		return err
	}
	ok := u.CanManageTransfersEtc
	if t == domain.TypeDismissal {
		ok = u.CanManageDismissals
	}
	if !ok {
		return ForbiddenError{Permission: PermissionFor(t)}
	}
	return nil
}

// CanRespond checks that u belongs to the responding team.
func CanRespond(u domain.User, teamID string) error {
	if !u.InTeam(teamID) {
		return ForbiddenError{Permission: "team:" + teamID}
	}
	return nil
}
