package barrier

// Barrier is an obstacle fixture an agent must overcome. Values are
// immutable once loaded; Difficulty and Resistance are nominally in [0, 1]
// but are not range-checked.
type Barrier struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	BarrierType string         `json:"barrier_type"` // "policy", "infra", "data", "social", ...
	Difficulty  float64        `json:"difficulty"`
	Resistance  float64        `json:"resistance"` // 0 = easily persuaded, 1 = rigid
	GoalState   string         `json:"goal_state"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Outcome is the result of one agent's attempt at one barrier.
// All sub-scores are in [0, 1]; Fitness is derived via ComputeFitness.
type Outcome struct {
	BarrierID          string  `json:"barrier_id"`
	Success            bool    `json:"success"`
	Steps              int     `json:"steps"`
	Agency             float64 `json:"agency"`
	Persuasiveness     float64 `json:"persuasiveness"`
	ReturnToSetpoint   float64 `json:"return_to_setpoint"`
	CompetencyOverhang float64 `json:"competency_overhang"`
	SignalingFidelity  float64 `json:"signaling_fidelity"`
	CognitiveROI       float64 `json:"cognitive_roi"`
	Persuadability     float64 `json:"persuadability"`
	Fitness            float64 `json:"fitness"`
	Notes              string  `json:"notes,omitempty"`
}

// Summary aggregates outcomes across a barrier catalog. Every Mean* field is
// the arithmetic mean of the matching Outcome field; an empty run is all zeros.
type Summary struct {
	TotalBarriers          int       `json:"total_barriers"`
	SuccessRate            float64   `json:"success_rate"`
	MeanFitness            float64   `json:"mean_fitness"`
	MeanAgency             float64   `json:"mean_agency"`
	MeanPersuasiveness     float64   `json:"mean_persuasiveness"`
	MeanReturnToSetpoint   float64   `json:"mean_return_to_setpoint"`
	MeanCompetencyOverhang float64   `json:"mean_competency_overhang"`
	MeanSignalingFidelity  float64   `json:"mean_signaling_fidelity"`
	MeanCognitiveROI       float64   `json:"mean_cognitive_roi"`
	MeanPersuadability     float64   `json:"mean_persuadability"`
	Outcomes               []Outcome `json:"outcomes"`
}

// Agent is an agent under test. Solve must always return a well-formed
// outcome for the barrier; failures are encoded in the outcome itself.
type Agent interface {
	Solve(b Barrier) Outcome
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(b Barrier) Outcome

func (f AgentFunc) Solve(b Barrier) Outcome { return f(b) }
