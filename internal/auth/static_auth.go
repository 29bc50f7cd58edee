package auth

import (
	"context"
)

// StaticAuthenticator is a development-only authenticator that accepts any
// tgk_ key and grants it a fixed role.
type StaticAuthenticator struct {
	role    Role
	agentID string
}

func NewStaticAuthenticator(role Role) *StaticAuthenticator {
	if role == "" {
		role = RoleAdmin
	}
	return &StaticAuthenticator{role: role}
}

// NewStaticAgentAuthenticator grants every key the agent role, bound to agentID.
func NewStaticAgentAuthenticator(agentID string) *StaticAuthenticator {
	return &StaticAuthenticator{role: RoleAgent, agentID: agentID}
}

func (a *StaticAuthenticator) Authenticate(ctx context.Context) (*Principal, error) {
	token, err := ExtractBearerToken(ctx)
	if err != nil {
		return nil, err
	}
	id := token
	if len(id) > lookupPrefixLen {
		id = id[:lookupPrefixLen]
	}
	return &Principal{
		OperatorID: "static-" + id,
		Role:       a.role,
		AgentID:    a.agentID,
	}, nil
}
