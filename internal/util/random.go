package util

import (
	"crypto/rand"
	"math/big"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomAlphanumeric returns a random string of the given length drawn from [A-Za-z0-9].
func RandomAlphanumeric(length int) (string, error) {
	result := make([]byte, length)
	limit := big.NewInt(int64(len(alphanumeric)))
	for i := range result {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", WrapError("generate random string", err)
		}
		result[i] = alphanumeric[n.Int64()]
	}
	return string(result), nil
}
