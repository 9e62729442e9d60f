package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPLength is the number of digits in an emailed verification code.
const OTPLength = 6

// GenerateOTPCode returns a random numeric code of OTPLength digits using
// crypto/rand. Leading zeros are allowed.
func GenerateOTPCode() (string, error) {
	code := make([]byte, 0, OTPLength)
	for i := 0; i < OTPLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate otp digit: %w", err)
		}
		code = append(code, byte('0'+n.Int64()))
	}
	return string(code), nil
}
