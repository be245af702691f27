package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// numberAlphabet drops 0/O, 1/I/L so numbers survive being read over the phone.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const numberSuffixLen = 6

// NumberFunc returns a human-facing order number for an order created at t.
type NumberFunc func(t time.Time) (string, error)

// RandomNumber produces BZ-YYMMDD-XXXXXX.
func RandomNumber(t time.Time) (string, error) {
	suffix := make([]byte, numberSuffixLen)
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("order number: %w", err)
		}
		suffix[i] = numberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("BZ-%s-%s", t.UTC().Format("060102"), suffix), nil
}
