package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Digest returns a hex sha256 over the board contents in row-major order.
// Two boards with the same blocks in the same cells produce the same
// digest regardless of mutation history (block ids are excluded).
func (s *State) Digest() string {
	blocks := s.Blocks()
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Pos.Y != blocks[j].Pos.Y {
			return blocks[i].Pos.Y < blocks[j].Pos.Y
		}
		return blocks[i].Pos.X < blocks[j].Pos.X
	})
	h := sha256.New()
	var tmp [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
		h.Write(tmp[:])
	}
	writeInt(s.width)
	writeInt(s.height)
	for _, b := range blocks {
		writeInt(b.Pos.X)
		writeInt(b.Pos.Y)
		writeInt(int(b.Kind))
		writeInt(b.Tier)
	}
	return hex.EncodeToString(h.Sum(nil))
}
