package connpool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key identifies a dedupe-equivalence class of pool configurations: two
// Configs derive equal Keys iff their options, connection properties, and
// backend selector all compare equal by value. Key is comparable and is used
// directly as a map key inside the Registry.
type Key struct {
	canon string
	sum   uint64
}

// DeriveKey canonicalizes cfg into its Key. Derivation is pure and cheap
// (two small map sorts), so callers run it eagerly before any locking.
func DeriveKey(cfg Config) Key {
	var b strings.Builder
	b.WriteString("backend=")
	b.WriteString(cfg.Backend().String())

	poolKeys := make([]string, 0, len(cfg.PoolProps))
	for k := range cfg.PoolProps {
		poolKeys = append(poolKeys, string(k))
	}
	sort.Strings(poolKeys)
	for _, k := range poolKeys {
		// NUL separators keep crafted values from colliding across fields
		b.WriteString("\x00o\x00")
		b.WriteString(k)
		b.WriteByte('\x00')
		b.WriteString(cfg.PoolProps[Option(k)])
	}

	connKeys := make([]string, 0, len(cfg.ConnProps))
	for k := range cfg.ConnProps {
		connKeys = append(connKeys, k)
	}
	sort.Strings(connKeys)
	for _, k := range connKeys {
		b.WriteString("\x00p\x00")
		b.WriteString(k)
		b.WriteByte('\x00')
		b.WriteString(cfg.ConnProps[k])
	}

	canon := b.String()
	return Key{canon: canon, sum: xxhash.Sum64String(canon)}
}

// Hash returns a stable 64-bit fingerprint of the key, suitable for logs
// and metric labels. Equality still goes through the full canonical form.
func (k Key) Hash() uint64 {
	return k.sum
}

// String renders the fingerprint as a fixed-width hex token.
func (k Key) String() string {
	return fmt.Sprintf("%016x", k.sum)
}
