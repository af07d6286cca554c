/*
	the counter package orchestrates single- and multi-threaded counting
	passes over a seqio.Stream and a hasher.Hasher into a kmertable.Table,
	adding bootstrap subsampling with a seedable RNG and shuffle-based
	counting via the shuffler package, plus the recount-with-mask pass
	used by iterative knockout enrichment
*/
package counter

import (
	"bytes"
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/ntkmer/katss/src/hasher"
	"github.com/ntkmer/katss/src/kmertable"
	"github.com/ntkmer/katss/src/seqio"
	"github.com/ntkmer/katss/src/shuffler"
)

// countBufferSize matches the chunk size the katss core reads at a time
// for the plain counting passes.
const countBufferSize = 65536

// localBatchSize is the number of hashes a multi-threaded worker
// accumulates before flushing under the table's mutex.
const localBatchSize = 250000

func clampThreads(threads int) int {
	if threads < 1 {
		return 1
	}
	if threads > 128 {
		return 128
	}
	return threads
}

func clampSample(sample int) int {
	if sample < 1 {
		return 1
	}
	if sample > 100000 {
		return 100000
	}
	return sample
}

// Count performs a single-threaded counting pass over stream.
func Count(stream *seqio.Stream, k int) (*kmertable.Table, error) {
	table, err := kmertable.New(k)
	if err != nil {
		return nil, err
	}
	if err := countInto(stream, table, k); err != nil {
		return nil, err
	}
	return table, nil
}

// countInto runs a single-threaded pass over stream, accumulating into an
// already-allocated table. Recount reuses this against a cleared table.
func countInto(stream *seqio.Stream, table *kmertable.Table, k int) error {
	h, err := hasher.New(k, stream.FileType())
	if err != nil {
		return err
	}
	buf := make([]byte, countBufferSize)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			maskChunk(chunk, table.MaskedKmers())
			h.SetSeq(chunk)
			for {
				hash, ok := h.Next()
				if !ok {
					break
				}
				table.Increment(hash)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// CountMT performs a counting pass with N worker goroutines sharing one
// Stream (serialized by its own mutex) and one Table. Each worker batches
// localBatchSize hashes locally before flushing under the table's mutex;
// the sum of counts equals the single-threaded count regardless of how
// work is interleaved between workers.
func CountMT(stream *seqio.Stream, k, threads int) (*kmertable.Table, error) {
	threads = clampThreads(threads)
	if threads == 1 {
		return Count(stream, k)
	}
	table, err := kmertable.New(k)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	errs := make(chan error, threads)
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if werr := countWorker(stream, table, k); werr != nil {
				errs <- werr
			}
		}()
	}
	wg.Wait()
	close(errs)
	for werr := range errs {
		if werr != nil {
			return nil, werr
		}
	}
	return table, nil
}

func countWorker(stream *seqio.Stream, table *kmertable.Table, k int) error {
	h, err := hasher.New(k, stream.FileType())
	if err != nil {
		return err
	}
	buf := make([]byte, countBufferSize)
	batch := make([]uint32, 0, localBatchSize)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			maskChunk(chunk, table.MaskedKmers())
			h.SetSeq(chunk)
			for {
				hash, ok := h.Next()
				if !ok {
					break
				}
				batch = append(batch, hash)
				if len(batch) == localBatchSize {
					table.IncrementBatch(batch)
					batch = batch[:0]
				}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
		if n == 0 {
			break
		}
	}
	table.IncrementBatch(batch)
	return nil
}

// CountBootstrap performs a single-threaded counting pass, keeping each
// record with probability sample/100000 (sample in [1,100000]) drawn from
// a deterministic RNG seeded by seed. One seed fully determines the set
// of sampled records.
func CountBootstrap(stream *seqio.Stream, k, sample int, seed int64) (*kmertable.Table, error) {
	sample = clampSample(sample)
	table, err := kmertable.New(k)
	if err != nil {
		return nil, err
	}
	h, err := hasher.New(k, stream.FileType())
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, countBufferSize)
	for {
		n, rerr := stream.Gets(buf)
		if n > 0 && rng.Intn(100000) < sample {
			h.Reset()
			h.SetSeq(buf[:n])
			for {
				hash, ok := h.Next()
				if !ok {
					break
				}
				table.Increment(hash)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, rerr
		}
	}
	return table, nil
}

// sharedRand is a mutex-guarded RNG shared by every CountBootstrapMT
// worker, so a single seed fully determines the set of sampled records
// regardless of which worker happens to read which record.
type sharedRand struct {
	lock sync.Mutex
	rng  *rand.Rand
}

// gets reads the next record from stream and draws its keep decision under
// one lock, so the nth record read always receives the nth draw.
func (s *sharedRand) gets(stream *seqio.Stream, buf []byte, sample int) (int, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	n, err := stream.Gets(buf)
	return n, n > 0 && s.rng.Intn(100000) < sample, err
}

// CountBootstrapMT is the multi-threaded counterpart of CountBootstrap.
func CountBootstrapMT(stream *seqio.Stream, k, sample int, seed int64, threads int) (*kmertable.Table, error) {
	threads = clampThreads(threads)
	if threads == 1 {
		return CountBootstrap(stream, k, sample, seed)
	}
	sample = clampSample(sample)
	table, err := kmertable.New(k)
	if err != nil {
		return nil, err
	}
	shared := &sharedRand{rng: rand.New(rand.NewSource(seed))}

	var wg sync.WaitGroup
	errs := make(chan error, threads)
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if werr := bootstrapWorker(stream, table, k, sample, shared); werr != nil {
				errs <- werr
			}
		}()
	}
	wg.Wait()
	close(errs)
	for werr := range errs {
		if werr != nil {
			return nil, werr
		}
	}
	return table, nil
}

func bootstrapWorker(stream *seqio.Stream, table *kmertable.Table, k, sample int, shared *sharedRand) error {
	h, err := hasher.New(k, stream.FileType())
	if err != nil {
		return err
	}
	buf := make([]byte, countBufferSize)
	batch := make([]uint32, 0, localBatchSize)
	for {
		n, keep, rerr := shared.gets(stream, buf, sample)
		if keep {
			h.Reset()
			h.SetSeq(buf[:n])
			for {
				hash, ok := h.Next()
				if !ok {
					break
				}
				batch = append(batch, hash)
				if len(batch) == localBatchSize {
					table.IncrementBatch(batch)
					batch = batch[:0]
				}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
	}
	table.IncrementBatch(batch)
	return nil
}

// CountShuffled performs a single-threaded counting pass where every
// sequence record is replaced by its klet-mer preserving shuffle (see the
// shuffler package) before hashing. The shuffle RNG is reset to seed 1 at
// the start of the pass so the shuffled corpus is reproducible.
func CountShuffled(stream *seqio.Stream, k, klet int) (*kmertable.Table, error) {
	table, err := kmertable.New(k)
	if err != nil {
		return nil, err
	}
	h, err := hasher.New(k, seqio.Raw)
	if err != nil {
		return nil, err
	}
	shuffler.ResetShuffleRNG(1)
	buf := make([]byte, countBufferSize)
	for {
		n, rerr := stream.Gets(buf)
		if n > 0 {
			shuffled, serr := shuffler.ShuffleSeq(string(buf[:n]), klet)
			if serr != nil {
				return nil, serr
			}
			h.Reset()
			h.SetSeq([]byte(shuffled))
			for {
				hash, ok := h.Next()
				if !ok {
					break
				}
				table.Increment(hash)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, rerr
		}
	}
	return table, nil
}

// Recount clears table's slots, pushes newKmer onto its masked k-mer
// list, and runs an ordinary single-threaded counting pass over stream
// with every occurrence of every masked k-mer (cumulative across calls)
// replaced by 'X' before hashing. This is the primitive IKKE iterates.
func Recount(stream *seqio.Stream, table *kmertable.Table, newKmer string) error {
	table.MaskPush(newKmer)
	table.Clear()
	return countInto(stream, table, table.K())
}

// RecountShuffled is the shuffle-background counterpart of Recount: it
// masks and clears table exactly as Recount does, then recounts stream
// with every record replaced by its klet-mer preserving shuffle, reseeding
// the shuffle RNG to seed 1 at the start of the pass so the shuffled
// corpus stays reproducible across recount iterations. This is the
// primitive IKKEShuffled iterates for its background table.
func RecountShuffled(stream *seqio.Stream, table *kmertable.Table, newKmer string, klet int) error {
	table.MaskPush(newKmer)
	table.Clear()

	h, err := hasher.New(table.K(), seqio.Raw)
	if err != nil {
		return err
	}
	shuffler.ResetShuffleRNG(1)
	buf := make([]byte, countBufferSize)
	for {
		n, rerr := stream.Gets(buf)
		if n > 0 {
			record := buf[:n]
			maskChunk(record, table.MaskedKmers())
			shuffled, serr := shuffler.ShuffleSeq(string(record), klet)
			if serr != nil {
				return serr
			}
			h.Reset()
			h.SetSeq([]byte(shuffled))
			for {
				hash, ok := h.Next()
				if !ok {
					break
				}
				table.Increment(hash)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
	}
	return nil
}

// RecountMT is the multi-threaded counterpart of Recount.
func RecountMT(stream *seqio.Stream, table *kmertable.Table, newKmer string, threads int) error {
	table.MaskPush(newKmer)
	table.Clear()
	threads = clampThreads(threads)
	if threads == 1 {
		return countInto(stream, table, table.K())
	}

	var wg sync.WaitGroup
	errs := make(chan error, threads)
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if werr := countWorker(stream, table, table.K()); werr != nil {
				errs <- werr
			}
		}()
	}
	wg.Wait()
	close(errs)
	for werr := range errs {
		if werr != nil {
			return werr
		}
	}
	return nil
}

// maskChunk blanks every case-insensitive occurrence (U treated as T) of
// every masked k-mer in chunk with 'X', in place, so the rolling hasher
// treats those bases as a non-nucleotide reset rather than counting them.
func maskChunk(chunk []byte, masked []string) {
	if len(masked) == 0 {
		return
	}
	upper := normalizeCopy(chunk)
	for _, m := range masked {
		needle := []byte(normalize(m))
		if len(needle) == 0 || len(needle) > len(upper) {
			continue
		}
		start := 0
		for {
			idx := bytes.Index(upper[start:], needle)
			if idx < 0 {
				break
			}
			pos := start + idx
			for j := pos; j < pos+len(needle); j++ {
				chunk[j] = 'X'
				upper[j] = 'X'
			}
			start = pos + len(needle)
		}
	}
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToUpper(s), "U", "T")
}

func normalizeCopy(b []byte) []byte {
	out := bytes.ToUpper(b)
	for i, c := range out {
		if c == 'U' {
			out[i] = 'T'
		}
	}
	return out
}
