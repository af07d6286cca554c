/*
	the kmertable package implements the fixed-capacity 4^k count table
	that every counting pass writes into: a small variant (k<=12, 64-bit
	slots) and a medium variant (k in [13,16], 32-bit slots), a mutex
	guarding batched updates and decrements, and a masked-k-mer list used
	by the recount/knockout passes
*/
package kmertable

import (
	"fmt"
	"math"
	"sync"

	"github.com/ntkmer/katss/src/hasher"
)

// error codes mirroring the ones used across the katss core
const (
	ErrIllegal     = 1
	ErrBadKeyLen   = 2
	ErrUnsupported = 3
)

// TableError reports a lookup failure classified by one of the error
// codes above.
type TableError struct {
	Code    int
	Message string
}

func (e *TableError) Error() string {
	return e.Message
}

func newTableError(code int, format string, args ...interface{}) *TableError {
	return &TableError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NumericType selects the saturating output type for a count lookup,
// mirroring the KATSS_TYPE enum every get_by_* call is parameterized on.
type NumericType int

// the supported output types
const (
	Uint8 NumericType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
	Float32
	Float64
)

// Table is a fixed 4^k slot count table. Capacity+1 == 4^k. For k<=12 the
// slots are 64-bit; for k in [13,16] they are 32-bit, matching the memory
// budget the katss core was designed around (a k=16 table has ~4.3 billion
// slots, ~17GB at 32 bits a slot, which 64-bit slots would double; at k=12
// a 64-bit table is only 128MiB).
type Table struct {
	lock sync.Mutex

	k        int
	capacity uint64
	small    []uint64 // used when k <= 12
	medium   []uint32 // used when k in [13,16]
	total    uint64

	maskedOrder []string
	maskedSeen  map[string]bool
}

// New allocates a Table for k-mers of length k (1..16).
func New(k int) (*Table, error) {
	if k < 1 || k > 16 {
		return nil, fmt.Errorf("kmertable: k must be in [1,16], got %d", k)
	}
	capacity := uint64(1)<<(2*uint(k)) - 1
	t := &Table{
		k:          k,
		capacity:   capacity,
		maskedSeen: make(map[string]bool),
	}
	if k <= 12 {
		t.small = make([]uint64, capacity+1)
	} else {
		t.medium = make([]uint32, capacity+1)
	}
	return t, nil
}

// K returns the configured k-mer length.
func (t *Table) K() int {
	return t.k
}

// Capacity returns 4^k - 1, the largest valid hash.
func (t *Table) Capacity() uint64 {
	return t.capacity
}

// Total returns the sum of all slot counts as of the last synchronized
// point (it may diverge transiently during a batched update in progress
// on another goroutine).
func (t *Table) Total() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.total
}

// Increment adds one to slot h and to the total, without taking the
// table's mutex. It is only safe when the caller is the table's sole
// writer, i.e. the single-threaded counting pass.
func (t *Table) Increment(h uint32) {
	if t.small != nil {
		t.small[h]++
	} else {
		t.medium[h]++
	}
	t.total++
}

// IncrementBatch applies every hash in hashes under the table's mutex,
// adding len(hashes) to the total, then returns. Multi-threaded counting
// workers accumulate a local batch and flush it with this method.
func (t *Table) IncrementBatch(hashes []uint32) {
	if len(hashes) == 0 {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.small != nil {
		for _, h := range hashes {
			t.small[h]++
		}
	} else {
		for _, h := range hashes {
			t.medium[h]++
		}
	}
	t.total += uint64(len(hashes))
}

// Decrement subtracts one from slot h and from the total, under the
// table's mutex.
func (t *Table) Decrement(h uint32) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.small != nil {
		t.small[h]--
	} else {
		t.medium[h]--
	}
	t.total--
}

// rawCount returns the unsaturated count at h as a uint64, the widest
// type either slot kind can hold.
func (t *Table) rawCount(h uint32) uint64 {
	if t.small != nil {
		return t.small[h]
	}
	return uint64(t.medium[h])
}

// GetByHash retrieves the count at hash h, saturating it to numericType.
func (t *Table) GetByHash(h uint32, numericType NumericType) (interface{}, error) {
	if uint64(h) > t.capacity {
		return nil, newTableError(ErrIllegal, "hash %d exceeds table capacity %d", h, t.capacity)
	}
	return saturate(t.rawCount(h), numericType), nil
}

// GetByString retrieves the count for a k-mer string, saturating it to
// numericType. A key of the wrong length is error 2; a key containing an
// illegal character is error 1.
func (t *Table) GetByString(s string, numericType NumericType) (interface{}, error) {
	if len(s) != t.k {
		return nil, newTableError(ErrBadKeyLen, "key %q has length %d, table k is %d", s, len(s), t.k)
	}
	hash, err := hasher.HashString(s)
	if err != nil {
		return nil, newTableError(ErrIllegal, "%v", err)
	}
	return saturate(t.rawCount(hash), numericType), nil
}

// MaskPush appends s to the masked k-mer list if it is not already
// present, preserving insertion order. Recounting passes replay this list
// to blank out every previously knocked-out motif before recounting.
func (t *Table) MaskPush(s string) {
	if t.maskedSeen[s] {
		return
	}
	t.maskedSeen[s] = true
	t.maskedOrder = append(t.maskedOrder, s)
}

// MaskedKmers returns the masked k-mer list in insertion order. The slice
// is owned by the table; callers must not mutate it.
func (t *Table) MaskedKmers() []string {
	return t.maskedOrder
}

// Clear zeroes every slot and the total, but keeps the masked k-mer list -
// this is exactly what a recount pass needs between knockout iterations.
func (t *Table) Clear() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.small != nil {
		for i := range t.small {
			t.small[i] = 0
		}
	} else {
		for i := range t.medium {
			t.medium[i] = 0
		}
	}
	t.total = 0
}

func saturate(count uint64, numericType NumericType) interface{} {
	switch numericType {
	case Uint8:
		if count > math.MaxUint8 {
			return uint8(math.MaxUint8)
		}
		return uint8(count)
	case Int8:
		if count > math.MaxInt8 {
			return int8(math.MaxInt8)
		}
		return int8(count)
	case Uint16:
		if count > math.MaxUint16 {
			return uint16(math.MaxUint16)
		}
		return uint16(count)
	case Int16:
		if count > math.MaxInt16 {
			return int16(math.MaxInt16)
		}
		return int16(count)
	case Uint32:
		if count > math.MaxUint32 {
			return uint32(math.MaxUint32)
		}
		return uint32(count)
	case Int32:
		if count > math.MaxInt32 {
			return int32(math.MaxInt32)
		}
		return int32(count)
	case Uint64:
		return count
	case Int64:
		if count > math.MaxInt64 {
			return int64(math.MaxInt64)
		}
		return int64(count)
	case Float32:
		return float32(count)
	case Float64:
		return float64(count)
	default:
		return count
	}
}
