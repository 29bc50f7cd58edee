package barrier

import "math"

// ComputeFitness scores one barrier attempt in [0, 1].
//
//	base       = 1.0 on success, 0.2 otherwise
//	step       = 1 / (1 + ln(1 + max(steps, 1)))
//	difficulty = 0.5 + 0.5*difficulty
//	resistance = 0.5 + 0.5*(1 - resistance)
//	modifier   = 0.5*agency + 0.5*persuasiveness
//
// The product is clamped to [0, 1].
func ComputeFitness(success bool, steps int, difficulty, resistance, agency, persuasiveness float64) float64 {
	base := 0.2
	if success {
		base = 1.0
	}
	stepPenalty := 1.0 / (1.0 + math.Log1p(float64(max(steps, 1))))
	difficultyBonus := 0.5 + 0.5*difficulty
	resistanceBonus := 0.5 + 0.5*(1.0-resistance)

	raw := base * stepPenalty * difficultyBonus * resistanceBonus
	mod := 0.5*agency + 0.5*persuasiveness

	return Clamp01(raw * mod)
}

// Clamp01 clamps v to [0, 1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
