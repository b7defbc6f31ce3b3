package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/clipweave/stitcher/internal/model"
	stitchnet "github.com/clipweave/stitcher/internal/platform/net"
)

// HTTPSource is the default RemoteSource: it requests a byte range of the
// encoded media associated with a videoId from a templated content-hosting
// URL, validated against an outbound allowlist before every request. The
// exact remote protocol is a collaborator detail; URLTemplate is expected
// to contain a single %s for the videoId.
type HTTPSource struct {
	Client      *http.Client
	URLTemplate string
	Policy      stitchnet.OutboundPolicy
}

// NewHTTPSource constructs an HTTPSource.
func NewHTTPSource(client *http.Client, urlTemplate string, policy stitchnet.OutboundPolicy) *HTTPSource {
	return &HTTPSource{Client: client, URLTemplate: urlTemplate, Policy: policy}
}

// Open validates the templated URL against the outbound policy, then issues
// a GET carrying the span's start time and duration in the X-Clip-Start and
// X-Clip-Duration headers; no HTTP Range header is sent.
func (s *HTTPSource) Open(ctx context.Context, span model.Span) (io.ReadCloser, error) {
	raw := fmt.Sprintf(s.URLTemplate, span.VideoID)
	validated, err := stitchnet.ValidateOutboundURL(ctx, raw, s.Policy)
	if err != nil {
		return nil, fmt.Errorf("fetcher: outbound policy rejected %q: %w", span.VideoID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, validated, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("X-Clip-Start", fmt.Sprintf("%.6f", span.StartTime))
	req.Header.Set("X-Clip-Duration", fmt.Sprintf("%.6f", span.Duration))

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetcher: unexpected status %d for %q", resp.StatusCode, span.VideoID)
	}
	return resp.Body, nil
}
