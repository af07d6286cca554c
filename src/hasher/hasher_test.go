package hasher

import (
	"testing"

	"github.com/ntkmer/katss/src/seqio"
)

func collect(h *Hasher) []uint32 {
	var hashes []uint32
	for {
		hash, ok := h.Next()
		if !ok {
			break
		}
		hashes = append(hashes, hash)
	}
	return hashes
}

func TestRawHashingResetsOnNewline(t *testing.T) {
	h, err := New(3, seqio.Raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.SetSeq([]byte("ACGT\nACG"))
	hashes := collect(h)
	// ACGT -> ACG(0b000110,.. ), CGT; newline resets; ACG
	if len(hashes) != 3 {
		t.Fatalf("expected 3 k-mers, got %d (%v)", len(hashes), hashes)
	}
	if hashes[0] != hashes[2] {
		t.Fatalf("expected ACG hash to repeat after reset: %v", hashes)
	}
}

func TestFastaHashingSkipsHeaderAndNewlines(t *testing.T) {
	h, err := New(2, seqio.Fasta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.SetSeq([]byte(">seq1 description\nAC\nGT\n"))
	hashes := collect(h)
	// sequence bytes seen in order: A C G T -> kmers AC, CG, GT
	if len(hashes) != 3 {
		t.Fatalf("expected 3 k-mers, got %d (%v)", len(hashes), hashes)
	}
	ac, err := HashString("AC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hashes[0] != ac {
		t.Fatalf("expected first k-mer hash to equal hash(AC)=%d, got %d", ac, hashes[0])
	}
}

func TestFastqHashingSkipsPlusAndQualityLines(t *testing.T) {
	h, err := New(2, seqio.Fastq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.SetSeq([]byte("@read1\nACGT\n+\n!!!!\n@read2\nTTTT\n+\n####\n"))
	hashes := collect(h)
	// read1: AC, CG, GT ; read2 TTTT is not contiguous with read1 (header
	// restarts the fill) -> TT, TT, TT
	if len(hashes) != 6 {
		t.Fatalf("expected 6 k-mers, got %d (%v)", len(hashes), hashes)
	}
}

func TestSetSeqResumesAcrossBufferBoundary(t *testing.T) {
	h, err := New(4, seqio.Raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.SetSeq([]byte("AC"))
	if _, ok := h.Next(); ok {
		t.Fatal("expected no complete k-mer from a 2-byte buffer with k=4")
	}
	if !h.EndOfSeq() {
		t.Fatal("expected EndOfSeq after exhausting a short buffer")
	}
	h.SetSeq([]byte("GT"))
	hash, ok := h.Next()
	if !ok {
		t.Fatal("expected the partial k-mer to complete across the buffer boundary")
	}
	want, err := HashString("ACGT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != want {
		t.Fatalf("expected hash(ACGT)=%d, got %d", want, hash)
	}
}

func TestUnhashRoundTrip(t *testing.T) {
	kmer := "ACGTACGT"
	hash, err := HashString(kmer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Unhash(hash, len(kmer), true); got != kmer {
		t.Fatalf("round trip mismatch: want %q got %q", kmer, got)
	}
}

func TestHashStringRejectsIllegalCharacter(t *testing.T) {
	if _, err := HashString("ACGX"); err == nil {
		t.Fatal("expected error for illegal character")
	}
}

func TestNewRejectsOutOfRangeK(t *testing.T) {
	if _, err := New(0, seqio.Raw); err == nil {
		t.Fatal("expected error for k=0")
	}
	if _, err := New(17, seqio.Raw); err == nil {
		t.Fatal("expected error for k=17")
	}
}
