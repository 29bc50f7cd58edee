package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/metadata"
)

// KeyPrefix marks a trust gate API key.
const KeyPrefix = "tgk_"

// lookupPrefixLen is how much of a key is stored in clear for lookup.
const lookupPrefixLen = 12

// Role is what an authenticated operator may do.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

// Authenticator validates incoming requests and returns the caller's Principal.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Principal, error)
}

// Principal is an authenticated operator. Agent-role principals may only
// submit commands for their bound AgentID; an unbound agent key acts for no one.
type Principal struct {
	OperatorID string
	Role       Role
	AgentID    string
}

// CanActAs reports whether p may submit commands on behalf of agentID.
func (p *Principal) CanActAs(agentID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleAgent:
		return p.AgentID != "" && p.AgentID == agentID
	default:
		return false
	}
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// ExtractBearerToken extracts a tgk_ API key from gRPC metadata.
func ExtractBearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrUnauthenticated
	}
	token := values[0]
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, KeyPrefix) {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// GeneratedKey is a freshly minted API key with the values to store for it.
type GeneratedKey struct {
	Key    string // shown once to the operator
	Prefix string // api_key_prefix column
	Hash   string // api_key_hash column
}

// GenerateKey mints a random tgk_ key and its bcrypt hash.
func GenerateKey() (GeneratedKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return GeneratedKey{}, err
	}
	key := KeyPrefix + hex.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return GeneratedKey{}, err
	}
	return GeneratedKey{Key: key, Prefix: key[:lookupPrefixLen], Hash: string(hash)}, nil
}
