// Package textfile tells text content from binary content and picks the
// encoding that decodes it.
package textfile

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// SniffSize is the number of leading bytes inspected for NUL bytes.
const SniffSize = 1024

// Encoding is a named text decoder.
type Encoding struct {
	Name   string
	decode func([]byte) (string, error)
}

// Decode converts data to a UTF-8 string. It fails if data is not valid
// under the encoding.
func (e Encoding) Decode(data []byte) (string, error) {
	if e.decode == nil {
		return decodeUTF8(data)
	}

	return e.decode(data)
}

func (e Encoding) String() string {
	return e.Name
}

var (
	UTF8        = Encoding{Name: "utf-8", decode: decodeUTF8}
	Latin1      = Encoding{Name: "latin-1", decode: decodeLatin1}
	Windows1252 = Encoding{Name: "windows-1252", decode: decodeWindows1252}
	UTF16       = Encoding{Name: "utf-16", decode: decodeUTF16}
)

// DefaultEncodings returns the priority list used when none is configured.
func DefaultEncodings() []Encoding {
	return []Encoding{UTF8, Latin1, Windows1252, UTF16}
}

var aliases = map[string]Encoding{
	"utf-8":        UTF8,
	"utf8":         UTF8,
	"latin-1":      Latin1,
	"latin1":       Latin1,
	"iso-8859-1":   Latin1,
	"windows-1252": Windows1252,
	"cp1252":       Windows1252,
	"utf-16":       UTF16,
	"utf16":        UTF16,
}

// Lookup returns the encoding registered under name (case-insensitive).
func Lookup(name string) (Encoding, error) {
	enc, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Encoding{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}

	return enc, nil
}

// LookupAll resolves every name in order.
func LookupAll(names []string) ([]Encoding, error) {
	encodings := make([]Encoding, 0, len(names))

	for _, name := range names {
		enc, err := Lookup(name)
		if err != nil {
			return nil, err
		}

		encodings = append(encodings, enc)
	}

	return encodings, nil
}

// Result is the outcome of [Classify]. Encoding is meaningless when IsText
// is false.
type Result struct {
	IsText   bool
	Encoding Encoding
}

// IsBinary reports whether the first [SniffSize] bytes contain a NUL byte.
func IsBinary(data []byte) bool {
	if len(data) > SniffSize {
		data = data[:SniffSize]
	}

	return bytes.IndexByte(data, 0) >= 0
}

// Classify decides whether data is text and, if so, which encoding from the
// priority list decodes all of it. An empty list means [DefaultEncodings].
// Latin-1 is used when nothing in the list fits, so text never fails to
// classify.
func Classify(data []byte, encodings ...Encoding) Result {
	if IsBinary(data) {
		return Result{}
	}

	if len(encodings) == 0 {
		encodings = DefaultEncodings()
	}

	for _, enc := range encodings {
		if _, err := enc.Decode(data); err == nil {
			return Result{IsText: true, Encoding: enc}
		}
	}

	return Result{IsText: true, Encoding: Latin1}
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: utf-8", ErrInvalidEncoding)
	}

	return string(data), nil
}

func decodeLatin1(data []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// Bytes with no assigned character in Windows-1252.
var undefined1252 = [...]byte{0x81, 0x8d, 0x8f, 0x90, 0x9d}

func decodeWindows1252(data []byte) (string, error) {
	for _, b := range undefined1252 {
		if bytes.IndexByte(data, b) >= 0 {
			return "", fmt.Errorf("%w: windows-1252 byte 0x%02x", ErrInvalidEncoding, b)
		}
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

func decodeUTF16(data []byte) (string, error) {
	if len(data)%2 != 0 || !validUTF16(data) {
		return "", fmt.Errorf("%w: utf-16", ErrInvalidEncoding)
	}

	out, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// validUTF16 rejects unpaired surrogates. Byte order follows the BOM and
// defaults to little endian.
func validUTF16(data []byte) bool {
	bigEndian := len(data) >= 2 && data[0] == 0xfe && data[1] == 0xff

	unit := func(i int) uint16 {
		if bigEndian {
			return uint16(data[i])<<8 | uint16(data[i+1])
		}

		return uint16(data[i+1])<<8 | uint16(data[i])
	}

	for i := 0; i < len(data); i += 2 {
		u := unit(i)

		switch {
		case u >= 0xd800 && u < 0xdc00:
			if i+2 >= len(data) {
				return false
			}

			if next := unit(i + 2); next < 0xdc00 || next > 0xdfff {
				return false
			}

			i += 2
		case u >= 0xdc00 && u <= 0xdfff:
			return false
		}
	}

	return true
}

var (
	// ErrInvalidEncoding is returned by [Encoding.Decode] for content that is
	// not valid under the encoding.
	ErrInvalidEncoding = errors.New("invalid byte sequence")
	// ErrUnknownEncoding is returned by [Lookup] for unregistered names.
	ErrUnknownEncoding = errors.New("unknown encoding")
)
