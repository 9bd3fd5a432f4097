// Package decode turns raw log bytes into UTF-8 text lines.
//
// Input is sniffed for a byte order mark first. Without one, the whole
// buffer is validated as UTF-8; when that fails each line is decoded on its
// own through a chain of single-byte legacy encodings, falling back to a
// lossy conversion with replacement characters.
package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxLines caps how many lines a decoder returns.
const DefaultMaxLines = 10000

// Encoding names reported on a Result.
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF8BOM     = "utf-8-bom"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingWindows1252 = "windows-1252"
	EncodingISO88592    = "iso-8859-2"
	EncodingISO88593    = "iso-8859-3"
	EncodingLossy       = "utf-8-lossy"
)

// ErrDecode is returned when the input cannot be read or transcoded at all.
var ErrDecode = errors.New("decode failed")

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

type candidate struct {
	name string
	enc  encoding.Encoding
}

// fallbacks are tried per line, in order, once strict UTF-8 has failed.
var fallbacks = []candidate{
	{EncodingWindows1252, charmap.Windows1252},
	{EncodingISO88592, charmap.ISO8859_2},
	{EncodingISO88593, charmap.ISO8859_3},
}

// Result is the output of one decode.
type Result struct {
	Lines []string
	// Encoding is the dominant encoding detected across all lines.
	Encoding string
	// Truncated is set when input lines beyond the cap were discarded.
	Truncated bool
	// Lossy counts lines that needed replacement characters.
	Lossy int
}

// Decoder converts bytes to lines. It is safe for concurrent use.
type Decoder struct {
	maxLines int
	logger   *slog.Logger
}

// New creates a Decoder that keeps at most maxLines lines. A non-positive
// maxLines selects DefaultMaxLines.
func New(maxLines int, logger *slog.Logger) *Decoder {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{maxLines: maxLines, logger: logger}
}

// MaxLines returns the line cap.
func (d *Decoder) MaxLines() int {
	return d.maxLines
}

// Decode converts an in-memory buffer. Empty input yields an empty result.
func (d *Decoder) Decode(data []byte) (*Result, error) {
	if len(data) == 0 {
		return &Result{Encoding: EncodingUTF8}, nil
	}

	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return d.decodeBuffer(data[len(bomUTF8):], EncodingUTF8BOM), nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return d.decodeUTF16(data, unicode.LittleEndian, EncodingUTF16LE)
	case bytes.HasPrefix(data, bomUTF16BE):
		return d.decodeUTF16(data, unicode.BigEndian, EncodingUTF16BE)
	}

	return d.decodeBuffer(data, EncodingUTF8), nil
}

func (d *Decoder) decodeUTF16(data []byte, order unicode.Endianness, name string) (*Result, error) {
	text, err := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	return d.decodeBuffer(text, name), nil
}

// decodeBuffer splits data into lines. When the whole buffer is valid UTF-8
// no per-line work is done.
func (d *Decoder) decodeBuffer(data []byte, name string) *Result {
	res := &Result{Encoding: name}
	if utf8.Valid(data) {
		res.Truncated = splitLines(data, d.maxLines, func(line []byte) {
			res.Lines = append(res.Lines, string(line))
		})
		d.warnTruncated(res)
		return res
	}

	tally := newTally()
	res.Truncated = splitLines(data, d.maxLines, func(line []byte) {
		text, enc := decodeLine(line)
		if enc == EncodingLossy {
			res.Lossy++
		}
		tally.add(enc)
		res.Lines = append(res.Lines, text)
	})
	res.Encoding = tally.dominant(name)
	d.warnTruncated(res)
	return res
}

// DecodeReader is the streaming variant for large inputs. It stops reading
// once the line cap is reached instead of accumulating the whole input.
func (d *Decoder) DecodeReader(r io.Reader) (*Result, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	name := EncodingUTF8

	head, err := br.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(head) == 0 {
		return &Result{Encoding: EncodingUTF8}, nil
	}

	switch {
	case bytes.HasPrefix(head, bomUTF8):
		_, _ = br.Discard(len(bomUTF8))
		name = EncodingUTF8BOM
	case bytes.HasPrefix(head, bomUTF16LE):
		br = bufio.NewReaderSize(transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()), 64*1024)
		name = EncodingUTF16LE
	case bytes.HasPrefix(head, bomUTF16BE):
		br = bufio.NewReaderSize(transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()), 64*1024)
		name = EncodingUTF16BE
	}

	res := &Result{Encoding: name}
	tally := newTally()
	for {
		raw, readErr := br.ReadBytes('\n')
		if len(raw) > 0 {
			if len(res.Lines) == d.maxLines {
				res.Truncated = true
				break
			}
			line := trimEOL(raw)
			text, enc := decodeLine(line)
			if enc == EncodingLossy {
				res.Lossy++
			}
			tally.add(enc)
			res.Lines = append(res.Lines, text)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrDecode, readErr)
		}
	}

	res.Encoding = tally.dominant(name)
	d.warnTruncated(res)
	return res, nil
}

func (d *Decoder) warnTruncated(res *Result) {
	if !res.Truncated {
		return
	}
	d.logger.Warn("line cap reached, remaining input discarded",
		"max_lines", d.maxLines,
		"encoding", res.Encoding,
	)
}

// decodeLine decodes one line, returning the text and the encoding that
// produced it.
func decodeLine(line []byte) (string, string) {
	if utf8.Valid(line) {
		return string(line), EncodingUTF8
	}
	for _, c := range fallbacks {
		out, err := c.enc.NewDecoder().Bytes(line)
		if err != nil {
			continue
		}
		if !bytes.ContainsRune(out, utf8.RuneError) {
			return string(out), c.name
		}
	}
	return strings.ToValidUTF8(string(line), "\uFFFD"), EncodingLossy
}

// splitLines calls fn for each line in data, up to limit lines. Lines end at
// "\n" or "\r\n"; a lone "\r" is ordinary content. A final line without a
// terminator is still emitted. It reports whether lines were left over.
func splitLines(data []byte, limit int, fn func([]byte)) bool {
	count := 0
	for len(data) > 0 {
		if count == limit {
			return true
		}
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		fn(bytes.TrimSuffix(line, []byte{'\r'}))
		count++
	}
	return false
}

func trimEOL(raw []byte) []byte {
	raw = bytes.TrimSuffix(raw, []byte{'\n'})
	return bytes.TrimSuffix(raw, []byte{'\r'})
}

// tally counts which encodings decoded each line.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(name string) {
	if _, ok := t.counts[name]; !ok {
		t.order = append(t.order, name)
	}
	t.counts[name]++
}

// dominant returns the most used non UTF-8 encoding, or base when every
// line was already valid UTF-8.
func (t *tally) dominant(base string) string {
	best, bestCount := base, 0
	for _, name := range t.order {
		if name == EncodingUTF8 {
			continue
		}
		if t.counts[name] > bestCount {
			best, bestCount = name, t.counts[name]
		}
	}
	return best
}
