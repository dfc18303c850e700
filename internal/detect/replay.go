package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"
)

// ReplayDetector returns pre-recorded results, one frame per call, cycling
// back to the start after the last frame. It ignores the image.
type ReplayDetector struct {
	mu     sync.Mutex
	frames [][]DetectionResult
	next   int
}

// NewReplayDetector creates a detector over the given frames.
func NewReplayDetector(frames [][]DetectionResult) *ReplayDetector {
	return &ReplayDetector{frames: frames}
}

// LoadReplay reads a JSON-lines file where each non-empty line is the array of
// detections for one frame. Lines starting with '#' are comments.
func LoadReplay(path string) (*ReplayDetector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()
	return ReadReplay(f)
}

// ReadReplay parses the JSON-lines replay format from r.
func ReadReplay(r io.Reader) (*ReplayDetector, error) {
	var frames [][]DetectionResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var results []DetectionResult
		if err := json.Unmarshal([]byte(text), &results); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		frames = append(frames, results)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read replay: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("replay contains no frames")
	}
	return NewReplayDetector(frames), nil
}

// Detect returns the next recorded frame.
func (d *ReplayDetector) Detect(ctx context.Context, _ image.Image) ([]DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil, nil
	}
	out := d.frames[d.next]
	d.next = (d.next + 1) % len(d.frames)
	return out, nil
}

// Len returns the number of recorded frames.
func (d *ReplayDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}
