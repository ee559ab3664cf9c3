package app

import (
	"context"
	"crypto/rand"
	"math/big"

	"quizbattle-service/internal/domain"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 6
	// Bound on collision retries before giving up with a capacity error.
	maxRoomCodeAttempts = 100
)

func generateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeAlphabet[num.Int64()]
	}
	return string(code), nil
}

// allocateRoomCode generates a code that no currently non-terminal battle
// holds, retrying on collision up to maxRoomCodeAttempts.
func (s *BattleService) allocateRoomCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return "", err
		}
		inUse, err := s.battles.RoomCodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", domain.ErrRoomCodeExhausted
}
