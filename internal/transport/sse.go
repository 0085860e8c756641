// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  string
	ID    string
}

// DefaultMaxFrameBytes bounds a single line and a single event's data.
const DefaultMaxFrameBytes = 1 << 20

// Reader parses a server-sent event stream.
//
// Lines end in "\n" or "\r\n". Events without a data line are skipped and an
// event left unterminated at EOF is discarded.
type Reader struct {
	reader   *bufio.Reader
	maxBytes int
}

// NewReader creates an SSE reader. maxBytes <= 0 selects
// DefaultMaxFrameBytes.
func NewReader(r io.Reader, maxBytes int) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Reader{
		reader:   bufio.NewReader(r),
		maxBytes: maxBytes,
	}
}

// ReadEvent returns the next dispatched event. It returns io.EOF when the
// stream ends and ErrFrameTooLarge when a line or event exceeds the limit.
func (r *Reader) ReadEvent() (Frame, error) {
	var (
		frame   Frame
		data    []string
		hasData bool
		size    int
	)

	for {
		line, err := r.readLine()
		if err != nil {
			return Frame{}, err
		}

		// Empty line dispatches
		if line == "" {
			if !hasData {
				frame = Frame{}
				continue
			}
			frame.Data = strings.Join(data, "\n")
			return frame, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			size += len(value) + 1
			if size > r.maxBytes {
				return Frame{}, ErrFrameTooLarge
			}
			data = append(data, value)
			hasData = true
		case "event":
			frame.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				frame.ID = value
			}
		}
	}
}

// readLine returns one line without its terminator. A final line with no
// terminator is reported as io.EOF so the partial event is dropped.
func (r *Reader) readLine() (string, error) {
	var buf []byte
	for {
		chunk, err := r.reader.ReadSlice('\n')
		if len(buf)+len(chunk) > r.maxBytes+2 {
			return "", ErrFrameTooLarge
		}
		buf = append(buf, chunk...)

		switch {
		case err == nil:
			buf = bytes.TrimSuffix(buf[:len(buf)-1], []byte("\r"))
			return string(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", err
		}
	}
}
