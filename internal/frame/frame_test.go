package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns one scripted chunk per Read call, then io.EOF.
type chunkedReader struct {
	chunks [][]byte
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func chunks(parts ...string) *chunkedReader {
	cr := &chunkedReader{}
	for _, p := range parts {
		cr.chunks = append(cr.chunks, []byte(p))
	}
	return cr
}

func TestReader_SingleFrame(t *testing.T) {
	fr := NewReader(chunks("SELECT 1\x00"), DefaultChunkSize)

	cmd, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", cmd)

	_, err = fr.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReader_FrameSplitAcrossReads(t *testing.T) {
	fr := NewReader(chunks("INSERT INTO users", "(username, password) ", "VALUES('a','b')\x00"), DefaultChunkSize)

	cmd, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users(username, password) VALUES('a','b')", cmd)
}

func TestReader_SmallChunkSize(t *testing.T) {
	fr := NewReader(strings.NewReader("SELECT username FROM users\x00"), 3)

	cmd, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "SELECT username FROM users", cmd)
}

func TestReader_DiscardsBytesAfterTerminatorInChunk(t *testing.T) {
	fr := NewReader(chunks("first\x00second\x00", "third\x00"), DefaultChunkSize)

	cmd, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", cmd)

	cmd, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "third", cmd, "bytes trailing the first terminator in a chunk are dropped")
}

func TestReader_EmptyFrame(t *testing.T) {
	fr := NewReader(chunks("\x00"), DefaultChunkSize)

	cmd, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "", cmd)
}

func TestReader_EndOfStream(t *testing.T) {
	t.Run("closed before any bytes", func(t *testing.T) {
		fr := NewReader(chunks(), DefaultChunkSize)
		_, err := fr.Next()
		assert.ErrorIs(t, err, ErrEndOfStream)
	})

	t.Run("closed mid frame", func(t *testing.T) {
		fr := NewReader(chunks("SELECT * FR"), DefaultChunkSize)
		_, err := fr.Next()
		assert.ErrorIs(t, err, ErrEndOfStream)
	})

	t.Run("data and EOF in the same read", func(t *testing.T) {
		fr := NewReader(iotest.DataErrReader(strings.NewReader("SELECT 1\x00")), DefaultChunkSize)
		cmd, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", cmd)
	})
}

func TestReader_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	fr := NewReader(iotest.ErrReader(boom), DefaultChunkSize)

	_, err := fr.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrEndOfStream)
}

func TestReader_InvalidUTF8IsReplaced(t *testing.T) {
	fr := NewReader(chunks("SELECT '\xff\xfe' \xc3\xa9\x00"), DefaultChunkSize)

	cmd, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "SELECT '��' é", cmd)
}

func TestDecode_MaximalInvalidSubsequences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid", "caf\xc3\xa9", "café"},
		{"truncated three-byte then ascii", "\xe2\x82A", "\uFFFDA"},
		{"truncated four-byte", "x\xf0\x9f\x98", "x\uFFFD"},
		{"truncated two-byte at end", "ab\xc3", "ab\uFFFD"},
		{"two stray bytes", "\xff\xfe", "\uFFFD\uFFFD"},
		{"surrogate", "\xed\xa0\x80", "\uFFFD\uFFFD\uFFFD"},
		{"overlong", "\xe0\x80", "\uFFFD\uFFFD"},
		{"lone continuation", "\x80a", "\uFFFDa"},
		{"above U+10FFFF", "\xf4\x90\x80\x80", "\uFFFD\uFFFD\uFFFD\uFFFD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decode([]byte(tt.in)))
		})
	}
}

func TestReader_DefaultChunkSize(t *testing.T) {
	fr := NewReader(strings.NewReader("x\x00"), 0)
	assert.Len(t, fr.chunk, DefaultChunkSize)
}

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte("SUCCESS done\x00"), Encode("SUCCESS done"))
	assert.Equal(t, []byte{0}, Encode(""))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "ERROR no such table: x"))
	assert.Equal(t, "ERROR no such table: x\x00", buf.String())
}

func TestWrite_Error(t *testing.T) {
	pr, pw := io.Pipe()
	require.NoError(t, pr.Close())

	err := Write(pw, "SUCCESS []")
	assert.Error(t, err)
}
