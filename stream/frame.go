package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/teranos/sprout/errors"
)

// DefaultEventType is used for frames without an event: line
const DefaultEventType = "message"

// Event is one decoded frame of the stream
type Event struct {
	Type string
	Data json.RawMessage
}

// frameReader splits an event stream into frames.
// Lines end in \n or \r\n; a blank line terminates a frame.
type frameReader struct {
	scanner *bufio.Scanner

	eventType string
	data      []string
	hasData   bool
}

func newFrameReader(r io.Reader, maxLine int) *frameReader {
	scanner := bufio.NewScanner(r)
	initial := 64 * 1024
	if maxLine < initial {
		initial = maxLine
	}
	scanner.Buffer(make([]byte, 0, initial), maxLine)
	return &frameReader{scanner: scanner}
}

// rawFrame is a complete frame before its payload is decoded
type rawFrame struct {
	eventType string
	data      string
}

// next returns the next frame carrying data. Frames without a data: line, or
// whose data is empty, are skipped. io.EOF is returned at end of stream; a trailing frame with no
// terminating blank line is discarded.
func (fr *frameReader) next() (rawFrame, error) {
	for fr.scanner.Scan() {
		line := strings.TrimSuffix(fr.scanner.Text(), "\r")

		if line == "" {
			data := strings.Join(fr.data, "\n")
			if !fr.hasData || data == "" {
				fr.reset()
				continue
			}
			frame := rawFrame{eventType: fr.eventType, data: data}
			if frame.eventType == "" {
				frame.eventType = DefaultEventType
			}
			fr.reset()
			return frame, nil
		}

		field, value := splitField(line)
		switch field {
		case "":
			// comment line
		case "event":
			fr.eventType = strings.TrimSpace(value)
		case "data":
			fr.data = append(fr.data, value)
			fr.hasData = true
		}
	}

	if err := fr.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return rawFrame{}, errors.Wrap(errors.ErrMalformedFrame, "frame line exceeds size limit")
		}
		return rawFrame{}, err
	}
	return rawFrame{}, io.EOF
}

func (fr *frameReader) reset() {
	fr.eventType = ""
	fr.data = fr.data[:0]
	fr.hasData = false
}

// splitField parses "field: value". Comment lines (leading ':') return an empty field.
func splitField(line string) (string, string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}

// decode validates the frame payload as JSON
func (f rawFrame) decode() (Event, error) {
	data := []byte(f.data)
	if !json.Valid(data) {
		err := errors.Wrapf(errors.ErrMalformedFrame, "failed to parse %s event data", f.eventType)
		return Event{}, errors.WithDetail(err, f.data)
	}
	return Event{Type: f.eventType, Data: json.RawMessage(data)}, nil
}
