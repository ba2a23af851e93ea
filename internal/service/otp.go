package service

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// OTPSender delivers a one-time password to the customer.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogOTPSender writes OTPs to the process log. Development use only.
type LogOTPSender struct{}

// SendOTP logs the code.
func (LogOTPSender) SendOTP(_ context.Context, phone, code string) error {
	log.Printf("[OTP] To=%s, Code=%s", phone, code)
	return nil
}

// generateOTP returns a random numeric code of the given length.
func generateOTP(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// hashOTP hashes a code for storage. The plaintext is never persisted.
func hashOTP(code string, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(code), cost)
}

// otpMatches compares a submitted code against the stored hash.
func otpMatches(hash []byte, code string, length int) bool {
	if len(code) != length || len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil
}
