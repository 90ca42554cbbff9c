package client

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

func streamOf(s string) (*PromptStream, *trackingBody) {
	body := &trackingBody{Reader: strings.NewReader(s)}
	return newPromptStream(body, "GET", "http://miri.test/api/v1/prompt/stream"), body
}

func TestPromptStream_Events(t *testing.T) {
	s, _ := streamOf("event:message\ndata:echo:\n\nevent:message\ndata: a\n\n")

	require.True(t, s.Next())
	assert.Equal(t, "message", s.Event())
	assert.Equal(t, "echo:", s.Chunk())

	require.True(t, s.Next())
	assert.Equal(t, " a", s.Chunk())

	assert.False(t, s.Next())
	assert.NoError(t, s.Err())
	assert.False(t, s.Next())
}

func TestPromptStream_KeepsTokenSpacing(t *testing.T) {
	s, _ := streamOf("event:message\ndata:Hello\n\nevent:message\ndata: world\n\nevent:message\ndata: again\n\n")

	got, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello world again", got)
}

func TestPromptStream_Parsing(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"multi-line data", "data:a\ndata:b\n\n", []string{"a\nb"}},
		{"crlf", "data:a\r\n\r\ndata:b\r\n\r\n", []string{"a", "b"}},
		{"comments skipped", ": keep-alive\ndata:a\n\n", []string{"a"}},
		{"no trailing blank line", "data:a\n\ndata:b", []string{"a", "b"}},
		{"leading space kept", "data: a\n\n", []string{" a"}},
		{"event without data", "event: ping\n\ndata:a\n\n", []string{"a"}},
		{"unknown fields ignored", "id:1\nretry:10\ndata:a\n\n", []string{"a"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := streamOf(tt.input)
			var got []string
			for s.Next() {
				got = append(got, s.Chunk())
			}
			require.NoError(t, s.Err())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptStream_EventResetsAfterDispatch(t *testing.T) {
	s, _ := streamOf("event: message\ndata:a\n\ndata:b\n\n")

	require.True(t, s.Next())
	assert.Equal(t, "message", s.Event())
	require.True(t, s.Next())
	assert.Empty(t, s.Event())
}

func TestPromptStream_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	s := newPromptStream(io.NopCloser(io.MultiReader(
		strings.NewReader("data:a\n\n"),
		iotest.ErrReader(boom),
	)), "GET", "http://miri.test/api/v1/prompt/stream")

	require.True(t, s.Next())
	assert.False(t, s.Next())

	err := s.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, boom))

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "GET", tErr.Method)
	assert.Equal(t, "http://miri.test/api/v1/prompt/stream", tErr.URL)
	assert.Contains(t, err.Error(), "GET http://miri.test/api/v1/prompt/stream")
}

func TestPromptStream_CollectClosesOnce(t *testing.T) {
	s, body := streamOf("data:echo:\n\ndata: hi\n\n")

	got, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", got)
	assert.NoError(t, s.Close())
	assert.Equal(t, 1, body.closes)
}
