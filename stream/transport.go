// Package stream opens a long-lived POST request and frames its
// text/event-stream response into events.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/internal/httpclient"
	"github.com/teranos/sprout/internal/util"
	"github.com/teranos/sprout/logger"
	"github.com/teranos/sprout/version"
	"go.uber.org/zap"
)

// EventJSONResponse is the synthetic event emitted for a non-streaming JSON response
const EventJSONResponse = "json_response"

// maxErrorBody bounds how much of a failed response is read for its message
const maxErrorBody = 64 * 1024

// Callbacks receive the outcome of one stream. Any of them may be nil.
//
// OnError is never called for caller cancellation. OnClose is called exactly
// once per Open, after every other callback.
type Callbacks struct {
	OnEvent func(Event)
	OnError func(error)
	OnClose func()
}

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string { return e.Message }

// Unwrap lets errors.Is(err, errors.ErrStreamFailed) match status failures
func (e *StatusError) Unwrap() error { return errors.ErrStreamFailed }

// Transport opens event streams over HTTP.
type Transport struct {
	client        *httpclient.SaferClient
	log           *zap.SugaredLogger
	maxFrameBytes int
}

// Option configures a Transport
type Option func(*Transport)

// WithClient overrides the HTTP client
func WithClient(c *httpclient.SaferClient) Option {
	return func(t *Transport) { t.client = c }
}

// WithMaxFrameBytes limits the size of a single stream line and of a JSON fallback body
func WithMaxFrameBytes(n int) Option {
	return func(t *Transport) { t.maxFrameBytes = n }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(t *Transport) { t.log = l }
}

// New creates a Transport. Without WithClient it blocks private hosts.
func New(opts ...Option) *Transport {
	t := &Transport{
		log:           logger.ComponentLogger("stream"),
		maxFrameBytes: am.DefaultMaxFrameBytes,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = httpclient.New(httpclient.Options{
			HeaderTimeout: am.DefaultConnectTimeoutSeconds * time.Second,
		})
	}
	return t
}

// NewFromConfig creates a Transport from the stream configuration section
func NewFromConfig(cfg am.StreamConfig, opts ...Option) *Transport {
	client := httpclient.New(httpclient.Options{
		HeaderTimeout:  time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		BlockPrivateIP: util.Ptr(!cfg.AllowPrivateHosts),
	})
	base := []Option{WithClient(client), WithMaxFrameBytes(cfg.MaxFrameBytes)}
	return New(append(base, opts...)...)
}

// Open POSTs body as JSON to url and delivers the response through cb.
// It blocks until the stream ends, fails, or ctx is cancelled.
//
// The returned error mirrors what OnError saw. Cancellation returns an error
// matching errors.ErrStreamCancelled and is not reported to OnError.
func (t *Transport) Open(ctx context.Context, url string, body any, cb Callbacks) error {
	defer func() {
		if cb.OnClose != nil {
			cb.OnClose()
		}
	}()

	log := logger.ChildLogger(t.log, logger.FieldsFromContext(ctx)...)
	err := t.run(ctx, log, url, body, cb)
	switch {
	case err == nil:
		log.Debugw("Stream closed", logger.FieldURL, url)
		return nil
	case errors.Is(ctx.Err(), context.Canceled):
		log.Debugw("Stream cancelled", logger.FieldURL, url)
		return errors.Wrap(errors.ErrStreamCancelled, "stream closed by caller")
	default:
		log.Warnw("Stream failed", logger.FieldURL, url, logger.FieldError, err)
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return err
	}
}

func (t *Transport) run(ctx context.Context, log *zap.SugaredLogger, url string, body any, cb Callbacks) error {
	payload := []byte("{}")
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "failed to encode stream request body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create stream request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", version.Get().UserAgent())

	log.Infow("Opening stream", logger.FieldURL, url)
	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "stream request"), errors.ErrStreamFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if !isEventStream(resp.Header.Get("Content-Type")) {
		return t.fallback(log, resp.Body, cb)
	}
	return t.readFrames(ctx, log, resp.Body, cb)
}

// readFrames delivers every frame. A frame that fails to decode is reported
// through OnError and skipped.
func (t *Transport) readFrames(ctx context.Context, log *zap.SugaredLogger, r io.Reader, cb Callbacks) error {
	frames := newFrameReader(r, t.maxFrameBytes)
	count := 0
	for {
		raw, err := frames.next()
		if errors.Is(err, io.EOF) {
			log.Debugw("Stream drained", logger.FieldCount, count)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Mark(errors.Wrap(err, "failed to read stream"), errors.ErrStreamFailed)
		}

		event, err := raw.decode()
		if err != nil {
			log.Debugw("Skipping malformed frame", logger.FieldEvent, raw.eventType, logger.FieldError, err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
			continue
		}

		count++
		if cb.OnEvent != nil {
			cb.OnEvent(event)
		}
	}
}

// fallback decodes a single JSON document and emits it as one EventJSONResponse
func (t *Transport) fallback(log *zap.SugaredLogger, r io.Reader, cb Callbacks) error {
	data, err := io.ReadAll(io.LimitReader(r, int64(t.maxFrameBytes)+1))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read response body"), errors.ErrStreamFailed)
	}
	if len(data) > t.maxFrameBytes {
		return errors.Newf("response body exceeds %d bytes", t.maxFrameBytes)
	}
	if !json.Valid(data) {
		return errors.WithDetail(errors.Wrap(errors.ErrMalformedFrame, "response is neither an event stream nor JSON"), string(data))
	}

	log.Debugw("Non-streaming response", logger.FieldSize, len(data))
	if cb.OnEvent != nil {
		cb.OnEvent(Event{Type: EventJSONResponse, Data: json.RawMessage(data)})
	}
	return nil
}

// statusError builds a StatusError from the server's {"error": "..."} body when present
func statusError(resp *http.Response) error {
	message := fmt.Sprintf("stream request failed (%d)", resp.StatusCode)

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		message = body.Error
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/event-stream"
}
