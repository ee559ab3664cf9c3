package app

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// sampleQuestions picks min(n, len(bank)) questions without replacement,
// seeded by the battle ID so repeated calls (including across restarts)
// return the identical subset in the identical order. The bank is sorted by
// question ID before shuffling so the result does not depend on load order.
func sampleQuestions(battleID uuid.UUID, bank []domain.Question, n int) []domain.Question {
	sorted := make([]domain.Question, len(bank))
	copy(sorted, bank)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	rnd := rand.New(rand.NewSource(battleSeed(battleID)))
	rnd.Shuffle(len(sorted), func(i, j int) {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	if n < 0 {
		n = 0
	}
	return sorted[:n]
}

func battleSeed(battleID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(battleID.String()))
	return int64(h.Sum64())
}
