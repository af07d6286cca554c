/*
	the hasher package turns a (possibly truncated) buffer of sequence
	bytes into a lazy sequence of k-mer hashes, skipping record headers
	and non-nucleotide bytes and carrying partial state across buffer
	boundaries
*/
package hasher

import (
	"fmt"

	"github.com/ntkmer/katss/src/seqio"
)

// byte classes used by the base lookup table
const (
	baseA           = 0
	baseC           = 1
	baseG           = 2
	baseT           = 3
	baseEnd         = 4
	baseFastaHeader = 5
	baseFastqHeader = 6
	basePlusLine    = 7
	baseNewline     = 8
	baseOther       = 9
)

// base classifies every byte the hasher can see: 0-3 are nucleotide codes
// (A,C,G,T/U, case-insensitive), 4 is the sequence terminator, 5-7 are the
// filetype-specific record delimiters ('>','@','+'), 8 is newline, and 9 is
// everything else.
var base = buildBaseTable()

func buildBaseTable() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = baseOther
	}
	t[0] = baseEnd
	t['\n'] = baseNewline
	t['>'] = baseFastaHeader
	t['@'] = baseFastqHeader
	t['+'] = basePlusLine
	for _, c := range []byte("Aa") {
		t[c] = baseA
	}
	for _, c := range []byte("Cc") {
		t[c] = baseC
	}
	for _, c := range []byte("Gg") {
		t[c] = baseG
	}
	for _, c := range []byte("TtUu") {
		t[c] = baseT
	}
	return t
}

// Hasher rolls a buffer of sequence bytes into 32-bit k-mer hashes. It
// carries partial k-mer state (a fill position and the in-progress hash)
// and a pending skip reason across SetSeq calls, so a k-mer that straddles
// two buffers - or a header line that straddles two buffers - still hashes
// correctly. A Hasher is not safe for concurrent use; each counting worker
// owns its own.
type Hasher struct {
	filetype seqio.FileType
	k        int
	mask     uint32

	buf []byte
	pos int

	previous    uint32
	hasPrevious bool
	endOfSeq    bool
	fillPos     int
	endReason   int // 0 clean, 1 skip to next newline, 2 skip two newlines
}

// New creates a Hasher for k-mers of length k (1..16) over sequence data
// framed as filetype.
func New(k int, filetype seqio.FileType) (*Hasher, error) {
	if k < 1 || k > 16 {
		return nil, fmt.Errorf("hasher: k must be in [1,16], got %d", k)
	}
	return &Hasher{
		filetype: filetype,
		k:        k,
		mask:     uint32(1<<(2*uint(k))) - 1,
	}, nil
}

// K returns the configured k-mer length.
func (h *Hasher) K() int {
	return h.k
}

// EndOfSeq reports whether the most recent Next call ran out of bytes in
// the current buffer (which includes hitting a header/quality line that
// is not yet fully in the buffer).
func (h *Hasher) EndOfSeq() bool {
	return h.endOfSeq
}

// Reset clears all partial state - the fill position, the in-progress
// hash, and any pending header/quality-line skip. Use this between
// independent records (e.g. bootstrap-sampled reads) where a partial
// k-mer must not bleed from one record into the next; SetSeq alone is for
// resuming across a buffer boundary within the same continuous stream.
func (h *Hasher) Reset() {
	h.buf = nil
	h.pos = 0
	h.previous = 0
	h.hasPrevious = false
	h.endOfSeq = false
	h.fillPos = 0
	h.endReason = 0
}

// SetSeq swaps in a new buffer of sequence bytes to hash. If the previous
// buffer ended mid-header or mid-quality-line, the pending skip is
// finished against the new buffer before hashing resumes.
func (h *Hasher) SetSeq(buf []byte) {
	h.buf = buf
	h.pos = 0
	h.endOfSeq = false
	h.handleEndReason()
	h.endReason = 0
}

func (h *Hasher) handleEndReason() {
	switch h.endReason {
	case 1:
		h.skipToNextLine()
	case 2:
		h.skipToNextLine()
		h.skipToNextLine()
	}
	if h.pos >= len(h.buf) {
		h.endOfSeq = true
	}
}

// skipToNextLine advances pos past the next newline, or to the end of the
// buffer if there is none.
func (h *Hasher) skipToNextLine() {
	for h.pos < len(h.buf) && h.buf[h.pos] != '\n' {
		h.pos++
	}
	if h.pos < len(h.buf) {
		h.pos++
	}
}

// Next returns the next k-mer hash from the current buffer. ok is false
// once the buffer is exhausted, including when a record header or quality
// line straddles this buffer and the next - call SetSeq with the next
// chunk and call Next again to resume; the partial hash and fill position
// carry over automatically.
func (h *Hasher) Next() (uint32, bool) {
	if !h.hasPrevious {
		hash, ok := h.buildHash()
		h.previous = hash
		h.hasPrevious = ok
		return hash, ok
	}

	// a lone newline between two bases of a multiline FASTA/FASTQ record
	// is skipped silently before the incremental roll
	if h.filetype != seqio.Raw {
		for h.pos < len(h.buf) && h.buf[h.pos] == '\n' {
			h.pos++
		}
	}
	if h.pos >= len(h.buf) {
		// keep the rolling hash so the next SetSeq continues the same run
		h.endOfSeq = true
		return 0, false
	}

	class := base[h.buf[h.pos]]
	switch {
	case class < baseEnd:
		h.pos++
		hash := ((h.previous << 2) | uint32(class)) & h.mask
		h.previous = hash
		return hash, true
	case class == baseEnd:
		h.pos++
		h.endOfSeq = true
		h.hasPrevious = false
		return 0, false
	default:
		// a record delimiter or stray byte: drop back into the
		// base-by-base builder to find the next well-formed k-mer
		h.hasPrevious = false
		hash, ok := h.buildHash()
		h.previous = hash
		h.hasPrevious = ok
		return hash, ok
	}
}

// buildHash accumulates k nucleotides base-by-base, skipping headers,
// quality lines, and newlines appropriate to h.filetype, and restarting
// whenever a non-nucleotide byte breaks the run.
func (h *Hasher) buildHash() (uint32, bool) {
	hash := uint32(0)
	if h.fillPos > 0 {
		hash = h.previous
	}
	for h.fillPos < h.k {
		if h.pos >= len(h.buf) {
			h.endOfSeq = true
			return hash, false
		}
		class := base[h.buf[h.pos]]
		switch class {
		case baseA, baseC, baseG, baseT:
			hash = hash*4 + uint32(class)
			h.fillPos++
			h.pos++

		case baseEnd:
			h.pos++
			h.endOfSeq = true
			return hash, false

		case baseFastaHeader:
			if h.filetype != seqio.Fasta {
				h.fillPos, hash = 0, 0
				h.pos++
				continue
			}
			h.fillPos, hash = 0, 0
			h.skipToNextLine()
			if h.pos >= len(h.buf) {
				h.endOfSeq, h.endReason = true, 1
				return 0, false
			}

		case baseFastqHeader:
			if h.filetype != seqio.Fastq {
				h.fillPos, hash = 0, 0
				h.pos++
				continue
			}
			h.fillPos, hash = 0, 0
			h.skipToNextLine()
			if h.pos >= len(h.buf) {
				h.endOfSeq, h.endReason = true, 1
				return 0, false
			}

		case basePlusLine:
			if h.filetype != seqio.Fastq {
				h.fillPos, hash = 0, 0
				h.pos++
				continue
			}
			h.fillPos, hash = 0, 0
			h.skipToNextLine()
			if h.pos >= len(h.buf) {
				h.endOfSeq, h.endReason = true, 2
				return 0, false
			}
			h.skipToNextLine()
			if h.pos >= len(h.buf) {
				h.endOfSeq, h.endReason = true, 1
				return 0, false
			}

		case baseNewline:
			if h.filetype == seqio.Raw {
				h.fillPos, hash = 0, 0
				h.pos++
				continue
			}
			h.pos++ // multiline FASTA/FASTQ: skip silently, don't reset

		default: // baseOther
			h.fillPos, hash = 0, 0
			h.pos++
		}
	}
	h.fillPos = 0
	return hash, true
}

// Unhash renders hash back into its k-length nucleotide string. useT
// selects T over U for the third pyrimidine base.
func Unhash(hash uint32, k int, useT bool) string {
	key := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		switch hash % 4 {
		case 0:
			key[i] = 'A'
		case 1:
			key[i] = 'C'
		case 2:
			key[i] = 'G'
		case 3:
			if useT {
				key[i] = 'T'
			} else {
				key[i] = 'U'
			}
		}
		hash /= 4
	}
	return string(key)
}

// HashString computes the direct hash of a complete k-mer string, the same
// encoding the rolling hasher produces incrementally. It is used for
// one-shot lookups (KmerTable.GetByString), where the whole k-mer is
// already in hand.
func HashString(s string) (uint32, error) {
	var hash uint32
	for i := 0; i < len(s); i++ {
		class := base[s[i]]
		if class > baseT {
			return 0, fmt.Errorf("hasher: illegal character %q in k-mer %q", s[i], s)
		}
		hash = hash*4 + uint32(class)
	}
	return hash, nil
}
