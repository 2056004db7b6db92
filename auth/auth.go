package auth

import (
	"fmt"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
)

// Role describes what a staff member is allowed to do
type Role string

// Defining the valid staff roles
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleTrainer Role = "trainer"
)

// Valid returns true if the role is one of the defined roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTrainer:
		return true
	default:
		return false
	}
}

// Elevated returns true for roles that can see every client and run reports
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager
}

// Claims is the JWT payload identifying an authenticated staff member
type Claims struct {
	jwt.StandardClaims
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

type contextKey string

// Context is the key under which *Claims live in the request context
const Context contextKey = "auth.claims"

// Environment determines token lifetime behavior
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Options contains the configuration for the Auth helper
type Options struct {
	Logger      *zap.Logger
	Environment Environment
	JWTSecret   []byte
}

// Auth issues and verifies bearer tokens for the API
type Auth struct {
	Options
}

// New returns an Auth helper for issuing and verifying tokens
func New(option Options) (*Auth, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.JWTSecret) == 0 {
		return nil, fmt.Errorf("empty JWTSecret is invalid")
	}
	return &Auth{
		Options: option,
	}, nil
}
