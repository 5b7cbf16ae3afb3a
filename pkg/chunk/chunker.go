package chunk

import (
	"fmt"
	"math/bits"
)

// Default chunking parameters. These match the repository config
// defaults; changing them on an existing repository perturbs chunk
// boundaries and therefore dedup ratios, but never correctness.
const (
	DefaultMin = 64 * 1024   // 64 KiB
	DefaultAvg = 256 * 1024  // 256 KiB
	DefaultMax = 1024 * 1024 // 1 MiB
)

// gearWindow is the effective window of the GearHash rolling hash:
// each output bit of the hash depends on at most the last 64 input
// bytes, because the shift-and-add recurrence discards older bytes
// one bit position per step.
const gearWindow = 64

// Params controls content-defined chunk boundaries.
//
// The boundary mask is derived from Avg: a boundary fires when the
// rolling hash has log2(Avg) leading zero bits under the mask, so the
// expected chunk size is approximately Avg. Min suppresses boundaries
// in the first Min bytes of each chunk; Max forces one.
type Params struct {
	Min uint32
	Avg uint32
	Max uint32
}

// DefaultParams returns the default chunking parameters.
func DefaultParams() Params {
	return Params{Min: DefaultMin, Avg: DefaultAvg, Max: DefaultMax}
}

// Validate checks the parameter invariants: all sizes positive,
// Min <= Avg <= Max, and Min large enough to cover the hash window.
func (p Params) Validate() error {
	if p.Min == 0 || p.Avg == 0 || p.Max == 0 {
		return fmt.Errorf("chunk sizes must be positive (min=%d avg=%d max=%d)", p.Min, p.Avg, p.Max)
	}
	if p.Min > p.Avg || p.Avg > p.Max {
		return fmt.Errorf("chunk sizes must satisfy min <= avg <= max (min=%d avg=%d max=%d)", p.Min, p.Avg, p.Max)
	}
	if p.Min <= gearWindow {
		return fmt.Errorf("chunk min %d must exceed the %d-byte hash window", p.Min, gearWindow)
	}
	return nil
}

// mask returns the GearHash boundary condition for the target average
// size: round(log2(Avg)) one-bits in the high positions, so the
// probability of a boundary at any byte is ~1/Avg.
func (p Params) mask() uint64 {
	n := bits.Len32(p.Avg) - 1
	if p.Avg > (uint32(1)<<n)+(uint32(1)<<n)/2 {
		n++ // round up when Avg is closer to the next power of two
	}
	return ^uint64(0) << (64 - n)
}

// Chunk is a contiguous span of input bytes between two content-
// defined boundaries, with its precomputed BLAKE3 hash.
//
// Data is a sub-slice of the chunker's input buffer. It is valid only
// until the input is modified; callers that retain chunks past the
// current ingestion pass must copy it.
type Chunk struct {
	Hash Hash
	Data []byte
}

// Chunker splits a byte buffer into content-defined chunks using the
// GearHash rolling hash. Boundaries depend only on local content, so
// an edit perturbs at most the chunks overlapping it. That locality is
// what lets dedup survive insertions, unlike fixed-size chunking.
//
// Create one with New and call Next until it returns nil. The same
// input under the same Params always produces the same boundaries.
type Chunker struct {
	data     []byte
	position int
	params   Params
	mask     uint64
	skip     int
}

// New creates a chunker over data. The slice is not copied; the
// caller must not modify it while iterating.
func New(data []byte, params Params) (*Chunker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	// No boundary can occur before Min, and the hash window is
	// gearWindow bytes, so the first Min-gearWindow-1 bytes of every
	// chunk need not be hashed at all. Skipping them produces
	// identical boundaries to hashing every byte.
	skip := int(params.Min) - gearWindow - 1
	return &Chunker{
		data:   data,
		params: params,
		mask:   params.mask(),
		skip:   skip,
	}, nil
}

// Next returns the next chunk, or nil when the input is exhausted.
func (c *Chunker) Next() *Chunk {
	if c.position >= len(c.data) {
		return nil
	}
	remaining := c.data[c.position:]
	end := c.findBoundary(remaining)
	chunk := &Chunk{
		Hash: Sum(remaining[:end]),
		Data: remaining[:end],
	}
	c.position += end
	return chunk
}

// findBoundary returns the length of the next chunk starting at
// data[0]. If no content-defined boundary occurs before Max bytes,
// the chunk is cut at Max; a final chunk shorter than Min is allowed.
func (c *Chunker) findBoundary(data []byte) int {
	length := len(data)
	maxSize := int(c.params.Max)
	minSize := int(c.params.Min)

	if length <= minSize {
		return length
	}
	if maxSize > length {
		maxSize = length
	}

	var hash uint64
	position := c.skip
	for position < maxSize {
		hash = (hash << 1) + gearTable[data[position]]
		position++
		if position >= minSize && hash&c.mask == 0 {
			return position
		}
	}
	return maxSize
}

// Split chunks the entire buffer and returns all chunks in order.
func Split(data []byte, params Params) ([]Chunk, error) {
	chunker, err := New(data, params)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for {
		chunk := chunker.Next()
		if chunk == nil {
			break
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, nil
}
