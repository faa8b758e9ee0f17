package am

import (
	"net"
	"net/url"

	"github.com/teranos/sprout/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := validateBaseURL("stream.base_url", c.Stream.BaseURL); err != nil {
		return err
	}
	if c.Stream.ConnectTimeoutSeconds <= 0 {
		return errors.Newf("stream.connect_timeout_seconds must be > 0, got %d", c.Stream.ConnectTimeoutSeconds)
	}
	// A frame limit below 4 KiB cannot hold a single node payload
	if c.Stream.MaxFrameBytes < 4096 {
		return errors.Newf("stream.max_frame_bytes must be >= 4096, got %d", c.Stream.MaxFrameBytes)
	}

	if c.Buffer.WindowMS <= 0 {
		return errors.Newf("buffer.window_ms must be > 0, got %d", c.Buffer.WindowMS)
	}

	// Grace of 0 removes nodes on the next tick, negative is invalid
	if c.Graph.RemovalGraceMS < 0 {
		return errors.Newf("graph.removal_grace_ms must be >= 0, got %d", c.Graph.RemovalGraceMS)
	}
	if c.Graph.MasteryThreshold < 0 || c.Graph.MasteryThreshold > 1 {
		return errors.Newf("graph.mastery_threshold must be within [0, 1], got %f", c.Graph.MasteryThreshold)
	}

	if err := validateBaseURL("backend.base_url", c.Backend.BaseURL); err != nil {
		return err
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return errors.Newf("backend.timeout_seconds must be > 0, got %d", c.Backend.TimeoutSeconds)
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return errors.Wrapf(err, "server.addr must be host:port, got %q", c.Server.Addr)
	}

	return nil
}

func validateBaseURL(key, raw string) error {
	if raw == "" {
		return errors.Newf("%s cannot be empty", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "%s is not a valid URL", key)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("%s must use http or https, got %q", key, u.Scheme)
	}
	if u.Host == "" {
		return errors.Newf("%s must include a host", key)
	}
	return nil
}
