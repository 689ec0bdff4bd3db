package gemini

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// The streamGenerateContent body is a JSON array of response objects, each
// carrying a "text" field somewhere in its structure. The array arrives in
// arbitrary chunk cuts and is usually incomplete while the stream is live, so
// the extraction must not depend on the document ever being parseable as a
// whole.
var textFieldRe = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"`)

const streamReadBuffer = 4 * 1024

// StreamDecoder reassembles the full generated text from a chunked response
// body. Each chunk is appended to an accumulated buffer which is rescanned in
// full for "text" fields; the concatenation of all matches in buffer order is
// the candidate text. The candidate replaces the current text only when it is
// strictly longer, so the accumulated text never shrinks for the life of one
// stream.
type StreamDecoder struct {
	pending []byte // tail bytes of a possibly incomplete UTF-8 sequence
	raw     strings.Builder
	current string
	onDelta func(string)
}

// NewStreamDecoder creates a decoder. onDelta, if non-nil, receives the full
// accumulated text (not a diff) on every increase.
func NewStreamDecoder(onDelta func(string)) *StreamDecoder {
	return &StreamDecoder{onDelta: onDelta}
}

// Decode consumes r until EOF and returns the final accumulated text. A
// stream that never produces a "text" match decodes to "", which is not an
// error. Transport errors surface alongside the best text seen so far.
func (d *StreamDecoder) Decode(r io.Reader) (string, error) {
	buf := make([]byte, streamReadBuffer)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if err == io.EOF {
			d.flush()
			return d.current, nil
		}
		if err != nil {
			return d.current, err
		}
	}
}

// Write feeds one raw chunk into the decoder. Multi-byte UTF-8 sequences may
// be split across chunk boundaries; trailing bytes that could still become a
// valid rune are held back until the next chunk instead of being decoded as
// replacement characters.
func (d *StreamDecoder) Write(chunk []byte) {
	d.pending = append(d.pending, chunk...)

	complete := 0
	for i := 0; i < len(d.pending); {
		r, size := utf8.DecodeRune(d.pending[i:])
		if r == utf8.RuneError && size == 1 {
			if len(d.pending)-i < utf8.UTFMax {
				// Possibly the start of a rune whose tail has not arrived.
				break
			}
			// Genuinely invalid byte; pass it through as-is.
			i++
			complete = i
			continue
		}
		i += size
		complete = i
	}

	if complete == 0 {
		return
	}
	d.raw.Write(d.pending[:complete])
	d.pending = d.pending[complete:]
	d.scan()
}

// Text returns the longest text extracted so far.
func (d *StreamDecoder) Text() string {
	return d.current
}

func (d *StreamDecoder) flush() {
	if len(d.pending) == 0 {
		return
	}
	d.raw.Write(d.pending)
	d.pending = nil
	d.scan()
}

func (d *StreamDecoder) scan() {
	matches := textFieldRe.FindAllStringSubmatch(d.raw.String(), -1)
	if len(matches) == 0 {
		return
	}

	var b strings.Builder
	for _, m := range matches {
		var s string
		// Re-quote the captured escape sequence and let the JSON decoder do
		// the unescaping. Matches that fail (truncated surrogates, bogus
		// escapes) are skipped without aborting the scan.
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err != nil {
			continue
		}
		b.WriteString(s)
	}

	if b.Len() > len(d.current) {
		d.current = b.String()
		if d.onDelta != nil {
			d.onDelta(d.current)
		}
	}
}
