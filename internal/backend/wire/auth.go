package wire

import (
	"github.com/butterchat/butterchat/internal/types"
)

// HTTP auth surface shared by the remote authenticator and the
// development server.

type SignInRequest struct {
	Provider string `json:"provider"`
}

type SignInResponse struct {
	GrantId string `json:"grant_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}
