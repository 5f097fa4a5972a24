package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

const doneSentinel = "[DONE]"

type streamState int

const (
	stateStreaming streamState = iota
	stateCompleted
	stateFailed
)

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// sseStream decodes a server-sent-events body into content fragments. A
// stream is Streaming until either the completion sentinel arrives (then
// Completed, Recv returns io.EOF) or the connection breaks before the
// sentinel (then Failed, Recv returns ErrUnavailable). Frames that are not
// data frames are skipped; data frames carrying malformed JSON are skipped
// too, since a broken frame does not invalidate the fragments around it.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	state  streamState
	err    error
}

func newSSEStream(body io.ReadCloser, cancel context.CancelFunc) *sseStream {
	return &sseStream{
		body:   body,
		reader: bufio.NewReader(body),
		cancel: cancel,
	}
}

// Recv returns the next non-empty content fragment. The bufio reader buffers
// partial lines, so a frame split across network reads is reassembled before
// parsing.
func (s *sseStream) Recv() (string, error) {
	switch s.state {
	case stateCompleted:
		return "", io.EOF
	case stateFailed:
		return "", s.err
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.state = stateFailed
			if err == io.EOF {
				s.err = fmt.Errorf("%w: stream ended before completion sentinel", ErrUnavailable)
			} else {
				s.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return "", s.err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			s.state = stateCompleted
			return "", io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			log.Debug().Err(err).Msg("skipping malformed stream frame")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

// Close releases the connection and the per-call deadline. Safe to call more
// than once and at any point in the stream's life.
func (s *sseStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}
