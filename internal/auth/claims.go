package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeSession TokenType = "session"

// Claims are carried by the session cookie issued by the dev backend.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	TokenType TokenType `json:"token_type"`
}
