package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateFactorNumber returns a merchant-side order reference such as
// "F-20260102-150405-123-0042".
func GenerateFactorNumber(now time.Time) string {
	now = now.UTC()
	millis := now.Nanosecond() / int(time.Millisecond)

	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf("F-%s-%03d-%04d", now.Format("20060102-150405"), millis, n.Int64())
}
