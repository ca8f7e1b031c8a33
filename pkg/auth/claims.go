package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject  string
	ClientID *uuid.UUID
	Anchor   bool
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to API callers. Anchor
// principals operate across clients; scoped principals carry their client id.
type AccessTokenClaims struct {
	ClientID *uuid.UUID `json:"client_id,omitempty"`
	Anchor   bool       `json:"anchor"`
	jwt.RegisteredClaims
}
