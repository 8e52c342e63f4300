package scheduler

import (
	"crypto/md5" //nolint:gosec
	"encoding/binary"
	"fmt"
)

// PairKey builds the offset key for a teacher/class pair.
func PairKey(teacher, class string) string {
	return teacher + "|" + class
}

// OffsetFor maps key to a stable value in [0, modulo). The first 32 bits of the
// MD5 digest are read big-endian, so the result is identical across processes and platforms.
func OffsetFor(key string, modulo int) (int, error) {
	if modulo <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrZeroModulo, modulo)
	}
	sum := md5.Sum([]byte(key)) //nolint:gosec
	head := binary.BigEndian.Uint32(sum[:4])
	return int(uint64(head) % uint64(modulo)), nil
}

// Rotate returns a new slice holding slots cyclically shifted left by k.
func Rotate(slots []Slot, k int) []Slot {
	n := len(slots)
	out := make([]Slot, n)
	if n == 0 {
		return out
	}
	k = ((k % n) + n) % n
	copy(out, slots[k:])
	copy(out[n-k:], slots[:k])
	return out
}
