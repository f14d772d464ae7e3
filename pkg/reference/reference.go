// Package reference generates human-traceable record references such as
// RCP-20240115-7KQ2MX.
package reference

import (
	"crypto/rand"
	"time"
)

// alphabet skips 0/O and 1/I so references survive being read over the phone.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// SuffixLen is the number of random characters in a reference.
const SuffixLen = 6

// New returns PREFIX-YYYYMMDD-XXXXXX for t in UTC.
func New(prefix string, t time.Time) string {
	return prefix + "-" + t.UTC().Format("20060102") + "-" + Random(SuffixLen)
}

// Random returns n characters drawn from alphabet.
func Random(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(b)
}
