package streaming

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PlaylistName is the entry point players fetch; segments sit next to
// it in the session directory.
const PlaylistName = "index.m3u8"

// Recorder pulls a vendor's live HLS feed into a local session
// directory. The vendor URL is short-lived and carries its own access
// token; clients never see it, they fetch the local copies through the
// authenticated segment endpoint.
type Recorder struct {
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *zap.SugaredLogger
}

func NewRecorder(pollInterval time.Duration, logger *zap.SugaredLogger) *Recorder {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Recorder{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Record mirrors the feed at sourceURL into dir until maxDuration
// passes, the source playlist ends, or ctx is cancelled. It is meant to
// run in its own goroutine.
func (r *Recorder) Record(ctx context.Context, sourceURL, dir string, maxDuration time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	base, err := url.Parse(sourceURL)
	if err != nil {
		r.logger.Warnw("invalid source playlist url", "error", err)
		return
	}

	fetched := make(map[string]bool)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		done, err := r.syncOnce(ctx, base, dir, fetched)
		if err != nil {
			r.logger.Warnw("live feed sync failed", "dir", dir, "error", err)
			return
		}
		if done {
			r.logger.Infow("live feed ended", "dir", dir, "segments", len(fetched))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// syncOnce fetches the source playlist, downloads any segments it has
// not seen, and rewrites the local playlist with local segment names.
// Returns true when the source signals the end of the stream.
func (r *Recorder) syncOnce(ctx context.Context, base *url.URL, dir string, fetched map[string]bool) (bool, error) {
	playlist, err := r.fetch(ctx, base.String())
	if err != nil {
		return false, err
	}

	var local []string
	ended := false

	for _, line := range strings.Split(string(playlist), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "#EXT-X-ENDLIST":
			ended = true
			local = append(local, line)
		case line == "" || strings.HasPrefix(line, "#"):
			local = append(local, line)
		default:
			name, err := r.mirrorSegment(ctx, base, dir, line, fetched)
			if err != nil {
				return false, err
			}
			local = append(local, name)
		}
	}

	playlistPath := filepath.Join(dir, PlaylistName)
	if err := os.WriteFile(playlistPath, []byte(strings.Join(local, "\n")), 0o640); err != nil {
		return false, fmt.Errorf("failed to write playlist: %w", err)
	}
	return ended, nil
}

func (r *Recorder) mirrorSegment(ctx context.Context, base *url.URL, dir, uri string, fetched map[string]bool) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("bad segment uri %q: %w", uri, err)
	}
	segmentURL := base.ResolveReference(ref)
	name := path.Base(segmentURL.Path)

	if fetched[name] {
		return name, nil
	}

	data, err := r.fetch(ctx, segmentURL.String())
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write segment: %w", err)
	}

	fetched[name] = true
	r.logger.Debugw("segment mirrored", "name", name, "size", len(data))
	return name, nil
}

func (r *Recorder) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
