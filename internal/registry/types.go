package registry

// AgentProfile is the trust record for one governed agent.
// TrustScore is the only field changed after registration.
type AgentProfile struct {
	AgentID         string  `json:"agent_id"`
	TrustScore      float64 `json:"trust_score"` // light-cone score, [0, 1]
	TemporalHorizon float64 `json:"temporal_horizon"`
	SpatialHorizon  float64 `json:"spatial_horizon"`
	DiscountRate    float64 `json:"discount_rate"`
}
