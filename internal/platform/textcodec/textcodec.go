// Package textcodec resolves the free-form encoding labels accepted on the
// execute/start_background tool calls (e.g. "utf-8", "iso-8859-1",
// "shift_jis") to an io.Reader that decodes a child process's raw output
// into UTF-8, replacing malformed byte sequences rather than failing on
// them.
package textcodec

import (
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultLabel is used when neither the caller nor the server configuration
// names an encoding.
const DefaultLabel = "utf-8"

// NewDecodingReader wraps r so reads come out as UTF-8, decoded per label
// (an IANA/WHATWG encoding name such as "utf-8" or "windows-1252"). An
// empty, unknown, or already-UTF-8 label returns r unchanged: x/text's
// decoders replace invalid sequences with U+FFFD rather than erroring, so
// unrecognized labels fall back to passing bytes through rather than
// rejecting the stream outright.
func NewDecodingReader(r io.Reader, label string) io.Reader {
	enc := resolve(label)
	if enc == nil {
		return r
	}
	return enc.NewDecoder().Reader(r)
}

func resolve(label string) encoding.Encoding {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == DefaultLabel || label == "utf8" {
		return nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil
	}
	return enc
}
