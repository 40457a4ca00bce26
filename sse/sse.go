// ABOUTME: Server-Sent Events reader that reassembles blank-line-delimited blocks from a byte stream.
// ABOUTME: Pull-based API: Next() yields one decoded block at a time regardless of chunk boundaries.

package sse

import (
	"bufio"
	"io"
	"strings"
)

// Block is one reassembled SSE block: an event name plus its raw data text.
// Data from multiple "data:" lines is joined with newlines; JSON decoding is
// left to the consumer so that transport framing stays payload-agnostic.
type Block struct {
	Event string // from "event:" line, "message" when absent
	Data  string // "data:" line(s), joined with "\n"
}

// Reader reassembles SSE blocks from an io.Reader. The underlying stream may
// deliver bytes at arbitrary boundaries, including mid-line and mid-block;
// Next always yields the same block sequence for the same total bytes.
type Reader struct {
	lines *lineScanner
	done  bool

	// Accumulation state for the block currently being assembled.
	event   string
	data    []string
	hasData bool
}

// NewReader creates a Reader that consumes SSE blocks from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{lines: newLineScanner(r)}
}

// Next returns the next block from the stream. It returns io.EOF once the
// stream is exhausted. A partial block still buffered when the stream closes
// is flushed as a final block rather than dropped.
func (r *Reader) Next() (Block, error) {
	if r.done {
		return Block{}, io.EOF
	}

	for {
		line, err := r.lines.readLine()
		if err != nil {
			if err == io.EOF {
				r.done = true
				if r.hasData {
					blk := r.build()
					r.reset()
					return blk, nil
				}
				return Block{}, io.EOF
			}
			return Block{}, err
		}

		// A blank line terminates the current block.
		if line == "" {
			if !r.hasData {
				// No data accumulated: nothing to dispatch, and a stray
				// event name must not leak into the next block.
				r.reset()
				continue
			}
			blk := r.build()
			r.reset()
			return blk, nil
		}

		// Comment lines start with ':'.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			r.event = value
		case "data":
			r.data = append(r.data, value)
			r.hasData = true
		default:
			// Unknown fields are ignored.
		}
	}
}

// splitField separates an SSE line into its field name and value. The value
// is everything after the first colon with a single leading space stripped;
// a line without a colon is a bare field name with an empty value.
func splitField(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx == -1 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

func (r *Reader) build() Block {
	event := r.event
	if event == "" {
		event = "message"
	}
	return Block{
		Event: event,
		Data:  strings.Join(r.data, "\n"),
	}
}

func (r *Reader) reset() {
	r.event = ""
	r.data = nil
	r.hasData = false
}

// lineScanner reads lines terminated by CR, LF, or CRLF. bufio.Scanner only
// understands LF and CRLF, so a bare-CR stream would otherwise collapse into
// one giant line.
type lineScanner struct {
	reader *bufio.Reader
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{reader: bufio.NewReaderSize(r, 4096)}
}

// readLine returns one line without its terminator. A final line with no
// terminator is returned before io.EOF.
func (s *lineScanner) readLine() (string, error) {
	var line strings.Builder
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				if line.Len() > 0 {
					return line.String(), nil
				}
				return "", io.EOF
			}
			return "", err
		}

		if b == '\n' {
			return line.String(), nil
		}

		if b == '\r' {
			// Consume the LF of a CRLF pair if present.
			next, err := s.reader.ReadByte()
			if err == nil && next != '\n' {
				_ = s.reader.UnreadByte()
			}
			return line.String(), nil
		}

		line.WriteByte(b)
	}
}
