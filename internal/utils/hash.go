package utils

import "hash/fnv"

// Hash64 returns a stable FNV-1a hash of the parts joined by a zero byte.
func Hash64(parts ...string) uint64 {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return h.Sum64()
}
