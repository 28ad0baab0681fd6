package engine

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strconv"
	"time"
)

// TokenLength is the length of the cache-busting query token
const TokenLength = 7

// Token returns a fresh random URL-safe token.
func Token() string {
	k := generateRandomKey(6)
	if k == nil {
		s := strconv.FormatInt(time.Now().UnixNano(), 36)
		return s[len(s)-TokenLength:]
	}
	return base64.RawURLEncoding.EncodeToString(k)[:TokenLength]
}

func generateRandomKey(length int) []byte {
	k := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return nil
	}
	return k
}
