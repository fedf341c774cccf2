package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// KeyPrefix namespaces every key written by this package.
	KeyPrefix = "langpacks_"

	// MaxKeyLength is the longest key handed to a Store.
	MaxKeyLength = 172
)

// Key derives the store key for a logical cache name. Names are lowercased and
// reduced to [a-z0-9_-]; results longer than MaxKeyLength collapse to the prefix
// followed by a 16 digit hash of the original name.
func Key(name string) string {
	key := KeyPrefix + sanitize(name)
	if len(key) <= MaxKeyLength {
		return key
	}
	return KeyPrefix + fmt.Sprintf("%016x", xxhash.Sum64String(name))
}

func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
