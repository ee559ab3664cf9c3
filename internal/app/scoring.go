package app

// Score computes the points earned for one answer. Incorrect answers earn
// nothing. Correct answers earn the question's base value plus a speed bonus
// of up to 50%, scaled linearly by how much of the time limit was left.
// Truncated toward zero, never rounded, so the result stays within
// [basePoints, floor(1.5*basePoints)].
func Score(basePoints, timeLimitSeconds, timeTakenSeconds int, correct bool) int {
	if !correct || basePoints <= 0 {
		return 0
	}
	if timeLimitSeconds <= 0 {
		return basePoints
	}
	bonus := float64(timeLimitSeconds-timeTakenSeconds) / float64(timeLimitSeconds) * 0.5
	if bonus < 0 {
		bonus = 0
	}
	return int(float64(basePoints) * (1 + bonus))
}
