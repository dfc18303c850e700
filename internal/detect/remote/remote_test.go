package remote

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/banshee-data/arlabel/internal/detect"
	"github.com/banshee-data/arlabel/internal/geom"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/timeutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

const cupReply = `[{"labels":[{"identifier":"cup","confidence":0.97}],"bounding_box":{"x":0.1,"y":0.2,"width":0.3,"height":0.4}}]`

type testServer struct {
	*httptest.Server
	connections atomic.Int32
	frames      atomic.Int32
}

// newTestServer answers every decodable JPEG with reply. handle, if set,
// replaces the per-message behavior.
func newTestServer(t *testing.T, handle func(conn *websocket.Conn, msg []byte) bool) *testServer {
	t.Helper()
	ts := &testServer{}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ts.connections.Add(1)
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				return
			}
			if _, err := jpeg.Decode(bytes.NewReader(msg)); err != nil {
				return
			}
			ts.frames.Add(1)
			if handle != nil {
				if !handle(conn, msg) {
					return
				}
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(cupReply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func testImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 32, 24))
}

func TestNew_ValidatesOptions(t *testing.T) {
	t.Parallel()
	_, err := New(Options{URL: "http://localhost/ws"})
	assert.Error(t, err)
	_, err = New(Options{URL: "ws://localhost/ws", JPEGQuality: 101})
	assert.Error(t, err)
	d, err := New(Options{URL: "wss://detector.local/ws"})
	require.NoError(t, err)
	assert.False(t, d.Connected())
	assert.NoError(t, d.Close())
}

func TestDetect_RoundTrip(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	d, err := New(Options{URL: wsURL(srv.Server), ReconnectDelay: time.Second})
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		results, err := d.Detect(ctx, testImage())
		require.NoError(t, err)
		require.Len(t, results, 1)
		top, ok := results[0].TopLabel()
		require.True(t, ok)
		assert.Equal(t, "cup", top.Identifier)
		assert.Equal(t, geom.Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}, results[0].BoundingBox)
	}
	assert.True(t, d.Connected())
	assert.Equal(t, int32(1), srv.connections.Load(), "one connection is reused")
	assert.Equal(t, int32(3), srv.frames.Load())
}

func TestDetect_FeedsSelector(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	d, err := New(Options{URL: wsURL(srv.Server)})
	require.NoError(t, err)
	defer d.Close()

	s := detect.NewSelector(detect.DefaultSelectorConfig(), nil, nil)
	results, err := d.Detect(context.Background(), testImage())
	require.NoError(t, err)
	c, ok := s.Update(context.Background(), 1, results)
	require.True(t, ok)
	assert.Equal(t, "cup", c.Label)
}

func TestDetect_ReconnectBackoff(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)
	url := wsURL(srv.Server)
	srv.Close()

	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	d, err := New(Options{URL: url, ReconnectDelay: 2 * time.Second, Clock: clock})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Detect(ctx, testImage())
	assert.ErrorIs(t, err, ErrUnavailable)

	// Within the delay no dial is attempted.
	clock.Advance(time.Second)
	_, err = d.Detect(ctx, testImage())
	assert.ErrorIs(t, err, ErrUnavailable)

	clock.Advance(2 * time.Second)
	_, err = d.Detect(ctx, testImage())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, d.Connected())
}

func TestDetect_ReconnectsAfterServerDrop(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newTestServer(t, func(conn *websocket.Conn, _ []byte) bool {
		if calls.Add(1) == 1 {
			return false // hang up without replying
		}
		return conn.WriteMessage(websocket.TextMessage, []byte(cupReply)) == nil
	})
	d, err := New(Options{URL: wsURL(srv.Server)})
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	_, err = d.Detect(ctx, testImage())
	require.Error(t, err)
	assert.False(t, d.Connected())

	results, err := d.Detect(ctx, testImage())
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(2), srv.connections.Load())
}

func TestDetect_ContextDeadline(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := newTestServer(t, func(conn *websocket.Conn, _ []byte) bool {
		<-release
		return false
	})
	defer close(release)

	d, err := New(Options{URL: wsURL(srv.Server)})
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = d.Detect(ctx, testImage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDetect_BadReply(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(conn *websocket.Conn, _ []byte) bool {
		return conn.WriteMessage(websocket.TextMessage, []byte(`{"not":"an array"}`)) == nil
	})
	d, err := New(Options{URL: wsURL(srv.Server)})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Detect(context.Background(), testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
	assert.True(t, d.Connected(), "a malformed reply keeps the connection")
}
