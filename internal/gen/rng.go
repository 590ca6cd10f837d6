package gen

import (
	"encoding/binary"
	"math/rand/v2"
)

// NewStream returns a seeded ChaCha8 random stream. The same seed and
// stream label always produce the same sequence on every platform, which
// is what the replay determinism contract rests on.
func NewStream(seed uint64, label uint64) *rand.Rand {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[0:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], label)
	binary.LittleEndian.PutUint64(key[16:24], seed^0x9e3779b97f4a7c15)
	binary.LittleEndian.PutUint64(key[24:32], label^0xd1b54a32d192ed03)
	return rand.New(rand.NewChaCha8(key))
}
