package storage

import (
	"crypto/rand"
	"io"

	"handsup/backend/internal/models"
)

// GenerateRoomCode returns a random room code of models.RoomCodeLength
// characters drawn from models.RoomCodeAlphabet.
func GenerateRoomCode() (string, error) {
	return generateCode(rand.Reader)
}

func generateCode(src io.Reader) (string, error) {
	const alphabet = models.RoomCodeAlphabet
	// largest multiple of len(alphabet) that fits in a byte, to avoid modulo bias
	const limit = 256 - 256%len(alphabet)

	code := make([]byte, 0, models.RoomCodeLength)
	buf := make([]byte, models.RoomCodeLength*2)
	for len(code) < models.RoomCodeLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, alphabet[int(b)%len(alphabet)])
			if len(code) == models.RoomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
