package textcodec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDecodingReaderPassesThroughUTF8(t *testing.T) {
	for _, label := range []string{"", "utf-8", "UTF8", "  utf-8  "} {
		r := NewDecodingReader(bytes.NewReader([]byte("hello")), label)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, "hello", string(got))
	}
}

func TestNewDecodingReaderDecodesWindows1252(t *testing.T) {
	// 0x93/0x94 are Windows-1252's curly quotes; they are not valid UTF-8 on
	// their own, so a pass-through reader would hand back mojibake.
	raw := []byte{0x93, 'h', 'i', 0x94}
	r := NewDecodingReader(bytes.NewReader(raw), "windows-1252")
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "“hi”", string(got))
}

func TestNewDecodingReaderFallsBackOnUnknownLabel(t *testing.T) {
	r := NewDecodingReader(bytes.NewReader([]byte("hello")), "not-a-real-encoding")
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}
