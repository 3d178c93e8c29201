// Package sse splits an arbitrarily chunked byte stream into complete
// server-sent-event frames. Frame boundaries need not align with chunk
// boundaries; any incomplete trailing data is buffered across calls.
package sse

import (
	"bytes"
	"io"
	"iter"
	"strings"
)

// Frame is one event:/data: unit terminated by a blank line in the wire
// stream. Data assembled from multiple data: lines is newline-joined.
type Frame struct {
	Event string
	Data  string
}

// IsZero reports whether the frame carries neither an event name nor data.
func (f Frame) IsZero() bool {
	return f.Event == "" && f.Data == ""
}

// FrameStream is a lazy sequence of frames. The error slot carries transport
// failures, which terminate the sequence.
type FrameStream = iter.Seq2[Frame, error]

// Reader is an incremental frame parser. Feed as many chunks as the transport
// delivers; completed frames come back immediately, everything else waits in
// the buffer until its terminating blank line arrives.
type Reader struct {
	buf []byte
}

// Feed appends chunk to the pending buffer and returns every frame completed
// by it. A frame is complete once a blank line is observed.
func (r *Reader) Feed(chunk []byte) []Frame {
	r.buf = append(r.buf, chunk...)
	var frames []Frame
	for {
		block, rest, found := cutBlock(r.buf)
		if !found {
			break
		}
		r.buf = rest
		if frame := parseBlock(block); !frame.IsZero() {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Close flushes the pending buffer. A non-empty buffer lacking a terminating
// blank line is treated as a final implicit frame rather than rejected, so
// producers that drop the connection right after the last payload still get
// their frame through.
func (r *Reader) Close() (Frame, bool) {
	block := r.buf
	r.buf = nil
	if len(bytes.TrimSpace(block)) == 0 {
		return Frame{}, false
	}
	frame := parseBlock(block)
	return frame, !frame.IsZero()
}

// cutBlock splits buf at the first blank line. CRLF line endings are
// normalized while scanning, so "\n\n", "\r\n\r\n" and mixed forms all
// terminate a block.
func cutBlock(buf []byte) (block, rest []byte, found bool) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(buf) && buf[j] == '\r' {
			j++
		}
		if j < len(buf) && buf[j] == '\n' {
			return buf[:i], buf[j+1:], true
		}
	}
	return nil, buf, false
}

func parseBlock(block []byte) (frame Frame) {
	var data []string
	for line := range bytes.Lines(block) {
		line = bytes.TrimRight(line, "\r\n")
		switch {
		case len(line) == 0:
			// stray blank line, nothing to do
		case line[0] == ':':
			// comment line per SSE convention
		case bytes.HasPrefix(line, []byte("event:")):
			frame.Event = strings.TrimPrefix(string(line[len("event:"):]), " ")
		case bytes.HasPrefix(line, []byte("data:")):
			data = append(data, strings.TrimPrefix(string(line[len("data:"):]), " "))
		default:
			// unrecognized field, ignored without resetting the event name
		}
	}
	frame.Data = strings.Join(data, "\n")
	return frame
}

// Frames adapts a byte source into a FrameStream, closing r when the sequence
// ends. A read failure terminates the stream through the error slot; an EOF
// flushes any unterminated trailing frame first.
func Frames(r io.ReadCloser) FrameStream {
	return func(yield func(Frame, error) bool) {
		defer r.Close()
		reader := new(Reader)
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				for _, frame := range reader.Feed(chunk[:n]) {
					if !yield(frame, nil) {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					if frame, ok := reader.Close(); ok {
						yield(frame, nil)
					}
				} else {
					yield(Frame{}, err)
				}
				return
			}
		}
	}
}
