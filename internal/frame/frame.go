package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Terminator is the sentinel byte that ends every request and response.
const Terminator byte = 0

// DefaultChunkSize is the number of bytes requested per read.
const DefaultChunkSize = 1024

// ErrEndOfStream is returned by Reader.Next when the peer closed the
// connection before completing a frame. Bytes of an unfinished frame are
// discarded.
var ErrEndOfStream = errors.New("frame: end of stream")

// Reader extracts terminator-delimited commands from a byte stream.
//
// It reads fixed-size chunks and accumulates them until the first
// Terminator appears. Anything after that terminator in the same chunk is
// dropped: the protocol is strictly one request per round trip, so a client
// never legitimately sends a second frame before reading the reply.
//
// There is no length limit. A peer that never sends a terminator grows only
// its own buffer.
//
// A Reader is owned by one connection and is not safe for concurrent use.
type Reader struct {
	r     io.Reader
	chunk []byte
	buf   []byte
}

// NewReader returns a Reader that requests chunkSize bytes per read.
// Non-positive sizes fall back to DefaultChunkSize.
func NewReader(r io.Reader, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{
		r:     r,
		chunk: make([]byte, chunkSize),
	}
}

// Next blocks until a full frame is available and returns its payload
// decoded as UTF-8. Each maximal invalid byte subsequence is replaced
// by one U+FFFD.
//
// It returns ErrEndOfStream when the peer closes the stream (a zero-byte
// read), whether or not a partial frame was buffered. Any other read error is
// returned wrapped.
func (fr *Reader) Next() (string, error) {
	fr.buf = fr.buf[:0]

	for {
		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf = append(fr.buf, fr.chunk[:n]...)
			if i := bytes.IndexByte(fr.buf, Terminator); i >= 0 {
				return decode(fr.buf[:i]), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrEndOfStream
			}
			return "", fmt.Errorf("reading frame: %w", err)
		}
		if n == 0 {
			// io.Reader allows (0, nil); a socket only does this on close.
			return "", ErrEndOfStream
		}
	}
}

// Buffered returns the number of bytes held for an unfinished frame.
func (fr *Reader) Buffered() int {
	return len(fr.buf)
}

// Encode returns payload followed by the terminator.
func Encode(payload string) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	return append(out, Terminator)
}

// Write sends payload as a single frame.
func Write(w io.Writer, payload string) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// decode converts raw bytes to a string. Each maximal invalid subsequence
// becomes a single U+FFFD: a lead byte followed by some, but not all, of its
// continuation bytes is one replacement.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb bytes.Buffer
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			size = invalidPrefix(b)
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefix returns the length of the maximal invalid subsequence at the
// start of b, which is known not to begin with a complete valid rune.
func invalidPrefix(b []byte) int {
	lo, hi, want := continuation(b[0])
	if want == 0 {
		return 1
	}
	n := 1
	for n <= want && n < len(b) {
		c := b[n]
		if n > 1 {
			lo, hi = 0x80, 0xBF
		}
		if c < lo || c > hi {
			break
		}
		n++
	}
	return n
}

// continuation reports the range allowed for the first continuation byte
// after lead and how many continuation bytes lead requires. Later
// continuation bytes are always 0x80-0xBF.
func continuation(lead byte) (lo, hi byte, want int) {
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		return 0x80, 0xBF, 1
	case lead == 0xE0:
		return 0xA0, 0xBF, 2
	case lead == 0xED:
		return 0x80, 0x9F, 2
	case lead >= 0xE1 && lead <= 0xEF:
		return 0x80, 0xBF, 2
	case lead == 0xF0:
		return 0x90, 0xBF, 3
	case lead >= 0xF1 && lead <= 0xF3:
		return 0x80, 0xBF, 3
	case lead == 0xF4:
		return 0x80, 0x8F, 3
	default:
		return 0, 0, 0
	}
}
