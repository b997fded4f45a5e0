package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const resetTokenBytes = 32

// GenerateResetToken выдаёт пару секрет/дайджест: секрет — 64 hex-символа
// из криптостойкого источника, дайджест — SHA-256 от секрета.
// В базу уходит только дайджест, секрет живёт лишь в ссылке из письма.
func GenerateResetToken() (secret, digest string, err error) {
	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("генерация токена: %w", err)
	}

	secret = hex.EncodeToString(raw)
	return secret, HashResetToken(secret), nil
}

// HashResetToken пересчитывает дайджест предъявленного секрета.
func HashResetToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DigestEqual сравнивает дайджесты за постоянное время,
// чтобы не давать тайминговый оракул.
func DigestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
