// Package probe discovers metadata about a remote resource: its final
// URL after redirects, total size, range support, and cache validators.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"splitfetch/internal/client"
	"splitfetch/internal/logger"
)

// Resource is the outcome of probing a URL. Size is -1 when the server
// did not report a usable length.
type Resource struct {
	FinalURL     string
	Size         int64
	AcceptRanges bool
	ETag         string
	LastModified string
}

type Prober struct {
	client       *client.Client
	maxRedirects int
}

func New(c *client.Client, maxRedirects int) *Prober {
	if maxRedirects <= 0 {
		maxRedirects = 3
	}
	return &Prober{client: c, maxRedirects: maxRedirects}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Probe issues a HEAD request, walking redirects manually, and falls
// back to a one-byte ranged GET when the metadata response exposes
// neither a length nor range support. Network failures are fatal; the
// caller does not retry probing.
func (p *Prober) Probe(ctx context.Context, rawURL string) (*Resource, error) {
	log := logger.New("probe")

	finalURL, headers, status, err := p.headWithRedirects(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if !(status >= 200 && status < 300 && (headers.Get("Content-Length") != "" || headers.Get("Accept-Ranges") != "")) {
		log.Debug().Int("status", status).Msg("Metadata request inconclusive, probing with ranged request")
		merged, err := p.rangeProbe(ctx, finalURL, headers)
		if err != nil {
			return nil, err
		}
		headers = merged
	}

	res := &Resource{
		FinalURL:     finalURL,
		Size:         parseSize(headers),
		AcceptRanges: strings.EqualFold(strings.TrimSpace(headers.Get("Accept-Ranges")), "bytes"),
		ETag:         strings.Trim(headers.Get("ETag"), `"`),
		LastModified: headers.Get("Last-Modified"),
	}
	log.Debug().Str("url", res.FinalURL).Int64("size", res.Size).
		Bool("acceptRanges", res.AcceptRanges).Msg("Probe complete")
	return res, nil
}

// headWithRedirects walks 3xx responses by hand so the final URL can be
// reported back to the caller. A redirect without a Location header, a
// non-redirect non-2xx status, or an exhausted hop budget all make the
// current response final.
func (p *Prober) headWithRedirects(ctx context.Context, rawURL string) (string, http.Header, int, error) {
	current := rawURL
	var headers http.Header
	var status int
	for hop := 0; hop <= p.maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, current, nil)
		if err != nil {
			return "", nil, 0, fmt.Errorf("error creating probe request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return "", nil, 0, fmt.Errorf("error probing %s: %w", current, err)
		}
		resp.Body.Close()
		headers, status = resp.Header, resp.StatusCode

		if !isRedirect(status) {
			return current, headers, status, nil
		}
		location := resp.Header.Get("Location")
		if location == "" {
			return current, headers, status, nil
		}
		next, err := resolveLocation(current, location)
		if err != nil {
			return "", nil, 0, fmt.Errorf("error resolving redirect from %s: %w", current, err)
		}
		current = next
	}
	return current, headers, status, nil
}

// rangeProbe asks for bytes 0-0 to coax size and range headers out of
// servers that answer HEAD poorly, then fills gaps from the earlier
// metadata response.
func (p *Prober) rangeProbe(ctx context.Context, rawURL string, known http.Header) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating ranged probe request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error on ranged probe of %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	merged := resp.Header.Clone()
	for key, values := range known {
		if merged.Get(key) == "" && len(values) > 0 {
			merged.Set(key, values[0])
		}
	}
	return merged, nil
}

// parseSize prefers the total from Content-Range (a ranged probe's
// Content-Length is the one requested byte), falling back to
// Content-Length.
func parseSize(headers http.Header) int64 {
	if cr := headers.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if total, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil && total > 0 {
				return total
			}
		}
	}
	if cl := headers.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > 0 {
			return size
		}
	}
	return -1
}

// resolveLocation handles absolute URLs, absolute paths, and
// path-relative references against the current scheme and authority.
func resolveLocation(current, location string) (string, error) {
	if strings.Contains(location, "://") {
		return location, nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(location, "/") {
		return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: location}).String(), nil
	}
	baseDir := ""
	if idx := strings.LastIndex(base.Path, "/"); idx >= 0 {
		baseDir = base.Path[:idx]
	}
	return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: baseDir + "/" + location}).String(), nil
}
