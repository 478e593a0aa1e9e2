package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/constants"
)

// Stream is an open push subscription. Records yields the raw payload of each
// event in arrival order and is closed when the stream ends; Err then reports
// why, returning nil after a local Close.
type Stream interface {
	Records() <-chan []byte
	Err() error
	Close() error
}

type sseStream struct {
	records chan []byte
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *sseStream) Records() <-chan []byte {
	return s.records
}

func (s *sseStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the underlying request and waits for the reader to exit.
func (s *sseStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
	return nil
}

func (s *sseStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err == nil {
		err = io.EOF
	}
	s.err = err
}

// Subscribe opens the push stream of a conversation.
func (c *Client) Subscribe(ctx context.Context, conversationID string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	endpoint := c.endpoint("message", "sse", conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, Classify(ctx.Err())
		}
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		cancel()
		return nil, decodeAPIError(resp)
	}

	s := &sseStream{
		records: make(chan []byte, constants.StreamBufferSize),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.read(ctx, resp.Body, conversationID)
	return s, nil
}

func (s *sseStream) read(ctx context.Context, body io.ReadCloser, conversationID string) {
	defer close(s.done)
	defer close(s.records)
	defer body.Close()

	start := time.Now()
	count := 0
	err := readEvents(ctx, body, func(payload []byte) bool {
		select {
		case s.records <- payload:
			count++
			return true
		case <-ctx.Done():
			return false
		}
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	s.finish(err)

	log.Debug().
		Str("conversation", conversationID).
		Int("records", count).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("Push stream closed")
}

// readEvents splits an event-stream body into events and hands the joined data
// lines of each to emit. Comment lines and other fields are ignored. An event
// whose data exceeds StreamMaxRecordBytes is dropped and reading goes on. It
// returns when the body ends, emit returns false, or the body fails.
func readEvents(ctx context.Context, r io.Reader, emit func([]byte) bool) error {
	br := bufio.NewReaderSize(r, 64*1024)
	limit := constants.StreamMaxRecordBytes

	var (
		data    []byte
		hasData bool
		dropped bool
	)
	drop := func(size int) {
		if !dropped {
			log.Warn().Int("size", size).Int("limit", limit).Msg("Dropping oversized push record")
		}
		data, hasData, dropped = nil, false, true
	}
	flush := func() bool {
		payload, ok := data, hasData && !dropped
		data, hasData, dropped = nil, false, false
		if !ok {
			return true
		}
		return emit(payload)
	}

	for {
		line, size, readErr := readLine(br, limit)
		switch {
		case size > limit:
			drop(size)
		case len(line) == 0:
			if readErr == nil && !flush() {
				return ctx.Err()
			}
		case line[0] == ':':
		case bytes.HasPrefix(line, []byte("data:")):
			if dropped {
				break
			}
			value := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if len(data)+len(value)+1 > limit {
				drop(len(data) + len(value))
				break
			}
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			hasData = true
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &Error{Kind: KindTransport, Err: readErr}
			}
			// A final event without its terminating blank line is still delivered.
			if !flush() {
				return ctx.Err()
			}
			return nil
		}
	}
}

// readLine returns the next line without its line ending, and the line's full
// size. Past limit the rest of the line is discarded and only the size counted.
func readLine(br *bufio.Reader, limit int) ([]byte, int, error) {
	var line []byte
	size := 0
	for {
		chunk, err := br.ReadSlice('\n')
		size += len(chunk)
		if size <= limit+2 {
			line = append(line, chunk...)
		} else {
			line = nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if size > limit+2 {
			return nil, size, err
		}
		return line, len(line), err
	}
}

// IsStreamEnd reports whether err only means the server closed the stream.
func IsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
