// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// MaxSourceBytes caps how much of a source is buffered in memory.
const MaxSourceBytes = 512 << 20

// FetchOptions configures source retrieval.
type FetchOptions struct {
	Timeout time.Duration // Overall timeout for remote sources (0 = none).
	Client  *http.Client  // Optional client, http.DefaultClient otherwise.
}

// IsRemote reports whether source names an http(s) URL rather than a local path.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Fetch reads the complete source into memory. Remote sources are downloaded
// in full; there is no streaming decode.
func Fetch(ctx context.Context, source string, opts FetchOptions) ([]byte, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("empty audio source")
	}
	if !IsRemote(source) {
		path := strings.TrimPrefix(source, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s': %w", path, err)
		}
		return data, nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for '%s': %w", source, err)
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download '%s': %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download '%s': unexpected status %s", source, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of '%s': %w", source, err)
	}
	if len(data) > MaxSourceBytes {
		return nil, fmt.Errorf("source '%s' exceeds %d bytes", source, MaxSourceBytes)
	}
	return data, nil
}

// Open fetches and decodes source.
func Open(ctx context.Context, source string, opts FetchOptions) (*Clip, error) {
	data, err := Fetch(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	clip, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode '%s': %w", source, err)
	}
	clip.Name = source
	return clip, nil
}
