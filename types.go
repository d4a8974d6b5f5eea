package authgate

import (
	"github.com/MrEthical07/authgate/credentials"
	"github.com/MrEthical07/authgate/permission"
)

// User is a stored account.
type User = credentials.User

// NewUser is the credential store input for registration.
type NewUser = credentials.NewUser

// CredentialStore holds user accounts.
type CredentialStore = credentials.Store

// Role is an account role.
type Role = permission.Role

const (
	RoleUser      = permission.RoleUser
	RoleModerator = permission.RoleModerator
	RoleAdmin     = permission.RoleAdmin
)

// Identity is the verified caller of one request.
type Identity struct {
	SubjectID int64
	Role      Role
	User      User
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest is the input to Engine.Register.
type RegisterRequest struct {
	Login                string
	Email                string
	Password             string
	PasswordConfirmation string
	Role                 Role
}
