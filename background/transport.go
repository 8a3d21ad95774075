package background

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/lasen/correction"
)

// maxResponseBody caps what is read from a remote reply (1 MiB).
const maxResponseBody int64 = 1 << 20

// ErrResponseTooLarge is returned when a remote reply exceeds the cap.
var ErrResponseTooLarge = errors.New("background: response too large")

// CheckEndpoint rejects endpoints that are not http(s) or that point at a
// loopback, private, link-local or unspecified address. Hostnames are
// resolved; a lookup failure is let through and surfaces at dial time.
func CheckEndpoint(ctx context.Context, raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeEndpoint, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrUnsafeEndpoint, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: no host", ErrUnsafeEndpoint)
	}
	if allowPrivate {
		return nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if privateAddr(addr) {
			return fmt.Errorf("%w: %s is private", ErrUnsafeEndpoint, host)
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: localhost", ErrUnsafeEndpoint)
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if privateAddr(a) {
			return fmt.Errorf("%w: %s resolves to %s", ErrUnsafeEndpoint, host, a)
		}
	}
	return nil
}

func privateAddr(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsUnspecified()
}

// HTTPHandler returns a Handler that POSTs the JSON payload to endpoint.
// Non-2xx replies become *ErrRemote carrying the {error} body field.
func HTTPHandler(service, endpoint string, client *http.Client) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("background: %s: create request: %w", service, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("background: %s: do request: %w", service, err)
		}
		defer resp.Body.Close()

		body, err := limitedReadAll(resp.Body, maxResponseBody)
		if err != nil {
			return nil, fmt.Errorf("background: %s: read response: %w", service, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, remoteError(service, resp.StatusCode, body)
		}
		return body, nil
	}
}

func remoteError(service string, status int, body []byte) *ErrRemote {
	var er correction.ErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ErrRemote{Service: service, Status: status, Message: msg}
}

func limitedReadAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
