package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

const maxStreamLine = 1 << 20

// PromptStream reads the server-sent events of a streaming prompt.
//
// The service frames events without a space after the field colon
// ("data:Hello", "data: world"), so data values are kept verbatim: a
// leading space belongs to the chunk.
//
//	for s.Next() {
//		fmt.Print(s.Chunk())
//	}
//	if err := s.Err(); err != nil { ... }
type PromptStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	method  string
	url     string

	event string
	chunk string
	err   error

	closeOnce sync.Once
	closeErr  error
}

func newPromptStream(body io.ReadCloser, method, url string) *PromptStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	return &PromptStream{body: body, scanner: sc, method: method, url: url}
}

// Next advances to the next event. It returns false at the end of the
// stream or on error.
func (s *PromptStream) Next() bool {
	if s.err != nil {
		return false
	}
	var (
		data    []string
		event   string
		hasData bool
	)
	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if line == "" {
			if hasData {
				s.event, s.chunk = event, strings.Join(data, "\n")
				return true
			}
			event = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		switch field {
		case "event":
			event = strings.TrimSpace(value)
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.err = &TransportError{Method: s.method, URL: s.url, Err: fmt.Errorf("read stream: %w", err)}
		return false
	}
	// A final event without a trailing blank line still counts.
	if hasData {
		s.event, s.chunk = event, strings.Join(data, "\n")
		return true
	}
	s.err = io.EOF
	return false
}

// Chunk is the data of the current event.
func (s *PromptStream) Chunk() string { return s.chunk }

// Event is the name of the current event; the service sends "message".
func (s *PromptStream) Event() string { return s.event }

// Err returns the error that stopped the stream, or nil at a clean end.
func (s *PromptStream) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Close releases the connection. It is safe to call more than once.
func (s *PromptStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Collect reads the rest of the stream, closes it and returns the chunks
// joined together.
func (s *PromptStream) Collect() (string, error) {
	defer s.Close()
	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Chunk())
	}
	return b.String(), s.Err()
}
