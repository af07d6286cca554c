/*
	the seqio package streams nucleotide sequence data from a path or an
	already-open descriptor, sniffing gzip/zlib compression and the
	underlying file framing, and exposes byte-, character-, and
	record-level reads for the counting passes built on top of it
*/
package seqio

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// FileType classifies the record framing of a sequence source.
type FileType int

// the recognised file types
const (
	Unknown FileType = iota
	Raw
	Fasta
	Fastq
)

func (t FileType) String() string {
	switch t {
	case Raw:
		return "raw"
	case Fasta:
		return "fasta"
	case Fastq:
		return "fastq"
	default:
		return "unknown"
	}
}

// error codes carried on StreamError, mirroring the numeric codes used
// throughout the katss core so callers can branch on Code rather than
// parse Message.
const (
	ErrMalformed = 1
	ErrArgument  = 2
	ErrIO        = 3
)

// StreamError reports a failure from the seqio package with a numeric
// code alongside the human-readable message.
type StreamError struct {
	Code    int
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

func newStreamError(code int, format string, args ...interface{}) *StreamError {
	return &StreamError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// default buffer sizes, matched to what the katss counting passes expect:
// an 8 KiB input buffer feeding the (possible) decompressor, and a 16 KiB
// output buffer holding decompressed bytes not yet delivered
const (
	defaultInputBuffer  = 8 * 1024
	defaultOutputBuffer = 16 * 1024
)

// Stream is an opened, possibly decompressed, sequence source with a
// detected FileType. The zero value is not usable; construct with Open or
// OpenReader. A Stream is shared by multiple counting workers under its
// own mutex; the *Unlocked methods trust the caller to already hold it
// (or to be single-threaded).
type Stream struct {
	lock     sync.Mutex
	r        *bufio.Reader
	closer   io.Closer
	fileType FileType
	eof      bool
}

// Open opens path, sniffing gzip/zlib compression, and detects its file
// type from the first 10 decompressed lines.
func Open(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newStreamError(ErrIO, "open %s: %v", path, err)
	}
	return OpenReader(f)
}

// OpenReader wraps an already-open descriptor, taking ownership of it -
// it is closed by Stream.Close. Use this for stdin or any other
// non-file source.
func OpenReader(rc io.ReadCloser) (*Stream, error) {
	input := bufio.NewReaderSize(rc, defaultInputBuffer)
	magic, err := input.Peek(2)
	if err != nil && err != io.EOF {
		return nil, newStreamError(ErrIO, "peek magic bytes: %v", err)
	}

	var src io.Reader = input
	switch {
	case len(magic) == 2 && magic[0] == 0x1F && magic[1] == 0x8B:
		gz, gzErr := gzip.NewReader(input)
		if gzErr != nil {
			return nil, newStreamError(ErrIO, "gzip header: %v", gzErr)
		}
		src = gz
	case len(magic) == 2 && magic[0] == 0x78 && isZlibSecondByte(magic[1]):
		zr, zErr := zlib.NewReader(input)
		if zErr != nil {
			return nil, newStreamError(ErrIO, "zlib header: %v", zErr)
		}
		src = zr
	}

	s := &Stream{
		r:      bufio.NewReaderSize(src, defaultOutputBuffer),
		closer: rc,
	}
	ft, err := DetectType(s.r)
	if err != nil {
		return nil, err
	}
	s.fileType = ft
	return s, nil
}

func isZlibSecondByte(b byte) bool {
	switch b {
	case 0x01, 0x5E, 0x9C, 0xDA:
		return true
	}
	return false
}

// Close releases the underlying descriptor.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// FileType returns the type detected at open.
func (s *Stream) FileType() FileType {
	return s.fileType
}

// EOF reports whether the stream has been exhausted.
func (s *Stream) EOF() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.eof
}

// Read fills buf with up to len(buf) decompressed bytes. It may return
// short without implying EOF; callers loop until Stream.EOF reports true.
func (s *Stream) Read(buf []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.ReadUnlocked(buf)
}

// ReadUnlocked is Read without the stream mutex.
func (s *Stream) ReadUnlocked(buf []byte) (int, error) {
	n, err := s.r.Read(buf)
	if err == io.EOF {
		s.eof = true
	}
	return n, err
}

// GetC returns the next raw byte, or io.EOF once the stream is exhausted.
func (s *Stream) GetC() (byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.GetCUnlocked()
}

// GetCUnlocked is GetC without the stream mutex.
func (s *Stream) GetCUnlocked() (byte, error) {
	b, err := s.r.ReadByte()
	if err == io.EOF {
		s.eof = true
	}
	return b, err
}

// GetNT returns the next nucleotide byte, skipping record headers,
// quality lines, and newlines per the stream's detected file type.
func (s *Stream) GetNT() (byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.GetNTUnlocked()
}

// GetNTUnlocked is GetNT without the stream mutex.
func (s *Stream) GetNTUnlocked() (byte, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				s.eof = true
			}
			return 0, err
		}
		switch {
		case b == '\n':
			continue
		case b == '>' && s.fileType == Fasta:
			if err := s.skipLineUnlocked(); err != nil {
				return 0, err
			}
			continue
		case b == '@' && s.fileType == Fastq:
			if err := s.skipLineUnlocked(); err != nil {
				return 0, err
			}
			continue
		case b == '+' && s.fileType == Fastq:
			// the plus line itself, and the quality line that follows it
			if err := s.skipLineUnlocked(); err != nil {
				return 0, err
			}
			if err := s.skipLineUnlocked(); err != nil {
				return 0, err
			}
			continue
		}
		if isNucleotide(b) {
			return b, nil
		}
		// any other delimiter byte is dropped and scanning continues
	}
}

func (s *Stream) skipLineUnlocked() error {
	_, err := s.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func isNucleotide(b byte) bool {
	switch b {
	case 'A', 'a', 'C', 'c', 'G', 'g', 'T', 't', 'U', 'u':
		return true
	}
	return false
}

// Gets fills buf with one record's sequence bytes, with no trailing
// newline, dispatching to the FASTA/FASTQ/raw sub-reader matching the
// stream's detected file type. It returns the number of bytes written.
func (s *Stream) Gets(buf []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.GetsUnlocked(buf)
}

// GetsUnlocked is Gets without the stream mutex.
func (s *Stream) GetsUnlocked(buf []byte) (int, error) {
	switch s.fileType {
	case Fasta:
		return s.getsFastaUnlocked(buf)
	case Fastq:
		return s.getsFastqUnlocked(buf)
	default:
		return s.getsRawUnlocked(buf)
	}
}

func (s *Stream) getsRawUnlocked(buf []byte) (int, error) {
	line, rerr := s.r.ReadString('\n')
	line = strings.TrimRight(line, "\n")
	if len(line) == 0 && rerr == io.EOF {
		s.eof = true
		return 0, io.EOF
	}
	n := copy(buf, line)
	if n < len(line) {
		return n, newStreamError(ErrMalformed, "record larger than buffer")
	}
	if rerr != nil {
		if rerr == io.EOF {
			s.eof = true
			return n, nil
		}
		return n, newStreamError(ErrIO, "read raw record: %v", rerr)
	}
	return n, nil
}

func (s *Stream) getsFastaUnlocked(buf []byte) (int, error) {
	header, herr := s.r.ReadString('\n')
	if herr != nil && herr != io.EOF {
		return 0, newStreamError(ErrIO, "read fasta header: %v", herr)
	}
	if len(header) == 0 {
		s.eof = true
		return 0, io.EOF
	}
	if header[0] != '>' {
		return 0, newStreamError(ErrMalformed, "expected fasta header, got %q", header)
	}
	n := 0
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				s.eof = true
				return n, nil
			}
			return n, newStreamError(ErrIO, "read fasta body: %v", err)
		}
		if b == '>' {
			if uerr := s.r.UnreadByte(); uerr != nil {
				return n, newStreamError(ErrIO, "unread fasta header byte: %v", uerr)
			}
			return n, nil
		}
		if b == '\n' {
			continue
		}
		if n >= len(buf) {
			return n, newStreamError(ErrMalformed, "record larger than buffer")
		}
		buf[n] = b
		n++
	}
}

func (s *Stream) getsFastqUnlocked(buf []byte) (int, error) {
	header, herr := s.r.ReadString('\n')
	if herr != nil && herr != io.EOF {
		return 0, newStreamError(ErrIO, "read fastq header: %v", herr)
	}
	if len(header) == 0 {
		s.eof = true
		return 0, io.EOF
	}
	if header[0] != '@' {
		return 0, newStreamError(ErrMalformed, "expected fastq header, got %q", header)
	}
	seqLine, serr := s.r.ReadString('\n')
	if serr != nil && serr != io.EOF {
		return 0, newStreamError(ErrIO, "read fastq sequence: %v", serr)
	}
	seqLine = strings.TrimRight(seqLine, "\n")
	plusLine, perr := s.r.ReadString('\n')
	if perr != nil && perr != io.EOF {
		return 0, newStreamError(ErrIO, "read fastq plus line: %v", perr)
	}
	if len(plusLine) == 0 || plusLine[0] != '+' {
		return 0, newStreamError(ErrMalformed, "expected fastq plus line, got %q", plusLine)
	}
	_, qerr := s.r.ReadString('\n')
	if qerr != nil && qerr != io.EOF {
		return 0, newStreamError(ErrIO, "read fastq quality: %v", qerr)
	}
	n := copy(buf, seqLine)
	if n < len(seqLine) {
		return n, newStreamError(ErrMalformed, "record larger than buffer")
	}
	if qerr == io.EOF {
		s.eof = true
	}
	return n, nil
}

// DetectType classifies the first 10 lines available from r as FASTA,
// FASTQ, raw sequences, or unknown. It only peeks at r, so the stream can
// still be read from the start afterwards.
func DetectType(r *bufio.Reader) (FileType, error) {
	const sniffLines = 10
	peekSize := 512
	var peeked []byte
	for {
		var err error
		peeked, err = r.Peek(peekSize)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return Unknown, newStreamError(ErrIO, "sniff file type: %v", err)
		}
		if bytes.Count(peeked, []byte{'\n'}) >= sniffLines || err == io.EOF || err == bufio.ErrBufferFull {
			break
		}
		peekSize *= 2
	}

	lines := splitLines(peeked, sniffLines)
	fastqScore, fastaScore, rawScore := 0, 0, 0
	for i, line := range lines {
		lineNo := i + 1
		switch {
		case lineNo%4 == 1 && len(line) > 0 && line[0] == '@':
			fastqScore++
		case lineNo%4 == 3 && len(line) > 0 && line[0] == '+':
			fastqScore++
		case len(line) > 0 && (line[0] == '>' || line[0] == ';'):
			fastaScore++
		default:
			if isMostlyNucleotide(line) {
				rawScore++
			}
		}
	}

	switch {
	case fastqScore >= 2:
		return Fastq, nil
	case fastaScore >= 1:
		return Fasta, nil
	case rawScore == len(lines) && len(lines) == sniffLines:
		return Raw, nil
	default:
		return Unknown, nil
	}
}

func splitLines(buf []byte, limit int) [][]byte {
	raw := bytes.Split(buf, []byte{'\n'})
	out := make([][]byte, 0, limit)
	for _, line := range raw {
		if len(out) == limit {
			break
		}
		out = append(out, bytes.TrimRight(line, "\r"))
	}
	return out
}

func isMostlyNucleotide(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	nt := 0
	for _, b := range line {
		if isNucleotide(b) {
			nt++
		}
	}
	return float64(nt)/float64(len(line)) > 0.9
}
