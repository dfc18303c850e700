// Package remote implements a detect.Detector backed by an inference server
// reached over a websocket. Each call sends one JPEG frame as a binary
// message and reads back one JSON array of detections.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"sync"
	"time"

	"github.com/banshee-data/arlabel/internal/detect"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/timeutil"
	"github.com/gorilla/websocket"
)

// ErrUnavailable is returned while waiting out the reconnect delay.
var ErrUnavailable = errors.New("detector server unavailable")

// Options configures a Detector.
type Options struct {
	URL            string
	ReconnectDelay time.Duration
	JPEGQuality    int // 1-100; 0 selects jpeg.DefaultQuality
	Dialer         *websocket.Dialer
	Clock          timeutil.Clock
}

// Detector is a websocket detector client. It holds at most one connection
// and serializes requests on it.
type Detector struct {
	url     string
	opts    Options
	dialer  *websocket.Dialer
	clock   timeutil.Clock
	quality int

	mu          sync.Mutex
	conn        *websocket.Conn
	lastFailure time.Time
	lastErr     error
}

var _ detect.Detector = (*Detector)(nil)

// New validates opts and returns a Detector. No connection is made until the
// first Detect.
func New(opts Options) (*Detector, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid detector url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("detector url must use ws or wss, got %q", u.Scheme)
	}
	if opts.JPEGQuality < 0 || opts.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpeg quality must be in [0, 100], got %d", opts.JPEGQuality)
	}

	d := &Detector{
		url:     u.String(),
		opts:    opts,
		dialer:  opts.Dialer,
		clock:   opts.Clock,
		quality: opts.JPEGQuality,
	}
	if d.dialer == nil {
		d.dialer = websocket.DefaultDialer
	}
	if d.clock == nil {
		d.clock = timeutil.RealClock{}
	}
	if d.quality == 0 {
		d.quality = jpeg.DefaultQuality
	}
	return d, nil
}

// Detect sends img and waits for the server's detections.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]detect.DetectionResult, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connectLocked(ctx)
	if err != nil {
		return nil, err
	}

	// Unblock reads and writes when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		conn.SetWriteDeadline(time.Now())
	})
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Time{})
		conn.SetReadDeadline(time.Time{})
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.dropLocked(err)
		return nil, fmt.Errorf("failed to send frame: %w", contextErr(ctx, err))
	}

	msgType, message, err := conn.ReadMessage()
	if err != nil {
		d.dropLocked(err)
		return nil, fmt.Errorf("failed to read detections: %w", contextErr(ctx, err))
	}
	if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type %d", msgType)
	}

	var results []detect.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	return results, nil
}

// contextErr prefers the context's error over the I/O error it caused.
func contextErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

func (d *Detector) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	if !d.lastFailure.IsZero() && d.clock.Since(d.lastFailure) < d.opts.ReconnectDelay {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, d.lastErr)
	}

	conn, _, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		d.lastFailure = d.clock.Now()
		d.lastErr = err
		monitoring.Logf("connection to detector %s failed: %v. retrying in %s", d.url, err, d.opts.ReconnectDelay)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	monitoring.Logf("connected to detector server %s", d.url)
	d.conn = conn
	d.lastFailure = time.Time{}
	d.lastErr = nil
	return conn, nil
}

func (d *Detector) dropLocked(err error) {
	monitoring.Logf("detector connection lost: %v", err)
	d.conn.Close()
	d.conn = nil
}

// Connected reports whether a connection is open.
func (d *Detector) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Close closes the connection, if any.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if cerr := d.conn.Close(); err == nil {
		err = cerr
	}
	d.conn = nil
	return err
}
