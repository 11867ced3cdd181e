package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// hlsSource simulates a vendor live feed whose playlist grows and then
// ends.
type hlsSource struct {
	mu       sync.Mutex
	playlist string
}

func (s *hlsSource) setPlaylist(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist = p
}

func (s *hlsSource) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Write([]byte(s.playlist))
	})
	mux.HandleFunc("/live/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data-" + r.URL.Path))
	})
	return mux
}

func TestRecorder_MirrorsFeedUntilEnd(t *testing.T) {
	source := &hlsSource{playlist: strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXTINF:2.0,",
		"seg_000.ts",
		"#EXTINF:2.0,",
		"seg_001.ts",
		"#EXT-X-ENDLIST",
	}, "\n")}

	server := httptest.NewServer(source.handler())
	defer server.Close()

	dir := t.TempDir()
	recorder := NewRecorder(10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	recorder.Record(context.Background(), server.URL+"/live/playlist.m3u8", dir, 5*time.Second)

	playlist, err := os.ReadFile(filepath.Join(dir, PlaylistName))
	require.NoError(t, err)
	assert.Contains(t, string(playlist), "seg_000.ts")
	assert.Contains(t, string(playlist), "#EXT-X-ENDLIST")
	assert.NotContains(t, string(playlist), server.URL,
		"the local playlist must not leak the vendor origin")

	for _, name := range []string{"seg_000.ts", "seg_001.ts"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data)
	}
}

func TestRecorder_GrowingPlaylist(t *testing.T) {
	source := &hlsSource{playlist: strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:2.0,",
		"seg_000.ts",
	}, "\n")}

	server := httptest.NewServer(source.handler())
	defer server.Close()

	dir := t.TempDir()
	recorder := NewRecorder(10*time.Millisecond, zaptest.NewLogger(t).Sugar())

	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Record(context.Background(), server.URL+"/live/playlist.m3u8", dir, 5*time.Second)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "seg_000.ts"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	source.setPlaylist(strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:2.0,",
		"seg_000.ts",
		"#EXTINF:2.0,",
		"seg_001.ts",
		"#EXT-X-ENDLIST",
	}, "\n"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("recorder never noticed the end of the stream")
	}

	_, err := os.Stat(filepath.Join(dir, "seg_001.ts"))
	assert.NoError(t, err)
}

func TestRecorder_AbsoluteSegmentURLs(t *testing.T) {
	var source hlsSource
	server := httptest.NewServer(source.handler())
	defer server.Close()

	source.setPlaylist(strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:2.0,",
		server.URL + "/live/cdn/seg_abs.ts",
		"#EXT-X-ENDLIST",
	}, "\n"))

	dir := t.TempDir()
	recorder := NewRecorder(10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	recorder.Record(context.Background(), server.URL+"/live/playlist.m3u8", dir, 5*time.Second)

	_, err := os.Stat(filepath.Join(dir, "seg_abs.ts"))
	assert.NoError(t, err, "absolute segment URLs are flattened to base names")

	playlist, err := os.ReadFile(filepath.Join(dir, PlaylistName))
	require.NoError(t, err)
	assert.Contains(t, string(playlist), "seg_abs.ts")
	assert.NotContains(t, string(playlist), "/live/cdn/")
}

func TestRecorder_SourceFailureStops(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(10*time.Millisecond, zaptest.NewLogger(t).Sugar())

	start := time.Now()
	recorder.Record(context.Background(), "http://127.0.0.1:1/live/playlist.m3u8", dir, 5*time.Second)
	assert.Less(t, time.Since(start), 3*time.Second, "a dead source must not be retried for the full window")
}

func TestRecorder_RespectsMaxDuration(t *testing.T) {
	source := &hlsSource{playlist: "#EXTM3U\n#EXTINF:2.0,\nseg_000.ts"}
	server := httptest.NewServer(source.handler())
	defer server.Close()

	dir := t.TempDir()
	recorder := NewRecorder(10*time.Millisecond, zaptest.NewLogger(t).Sugar())

	start := time.Now()
	recorder.Record(context.Background(), server.URL+"/live/playlist.m3u8", dir, 100*time.Millisecond)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 2*time.Second)
}
