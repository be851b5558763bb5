package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderNo builds the human-readable order reference handed to the
// payment provider. Uniqueness is enforced by the order_no column.
func GenerateOrderNo() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("ord_%d_%06d", timestamp, randomNum.Int64())
}

const inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateInviteCode returns a short human-typable code. The ambiguous
// characters (0/O, 1/I) are left out of the alphabet.
func GenerateInviteCode() string {
	code := make([]byte, 8)
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := range code {
		n, _ := rand.Int(rand.Reader, max)
		code[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(code)
}
