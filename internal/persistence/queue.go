// Package persistence implements the bounded, drop-oldest image save
// queue and the retention sweeper that prunes old date folders under
// the image storage root.
package persistence

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/types"
)

// Mirror is the optional off-box archive collaborator (MinIO) a
// Queue uploads a copy to after a successful local write.
type Mirror interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// SaveRequest is one (image, destination) pair awaiting persistence.
type SaveRequest struct {
	Image     types.Image
	AbsPath   string // local destination, full Images/... path
	MirrorKey string // object-store key; empty disables the mirror upload for this request
	Quality   int    // JPEG quality, 1-100
}

// Queue is a bounded multi-producer single-consumer save-request list
// with O(1) enqueue and drop-oldest-on-full semantics: the newest
// request always wins, since a recent failure image is worth more
// than a stale one. A mutex-guarded slice rather than a Go channel,
// so the drop-oldest policy can evict the head under concurrent
// producers without racing.
type Queue struct {
	mu       sync.Mutex
	items    []SaveRequest
	capacity int
	notify   chan struct{}

	dropped uint64

	mirror Mirror
}

// NewQueue creates a queue with the given bounded capacity
// (default 64).
func NewQueue(capacity int, mirror Mirror) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		mirror:   mirror,
	}
}

// Enqueue adds a save request in O(1). If the queue is full, the
// oldest pending request is dropped and counted.
func (q *Queue) Enqueue(req SaveRequest) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
		observability.PersistenceDropped.Inc()
	}
	q.items = append(q.items, req)
	depth := len(q.items)
	q.mu.Unlock()

	observability.PersistenceQueueDepth.Set(float64(depth))

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dropped returns the count of requests dropped for queue fullness.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) pop() (SaveRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return SaveRequest{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	observability.PersistenceQueueDepth.Set(float64(len(q.items)))
	return req, true
}

// Run is the single background worker draining the queue until ctx
// is canceled, checked at each iteration. I/O errors are logged and
// never propagate to producers.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drainRemaining(context.Background())
			return
		case <-q.notify:
		}

		for {
			req, ok := q.pop()
			if !ok {
				break
			}
			q.process(ctx, req)
		}
	}
}

// Shutdown flushes any remaining items with a bounded timeout.
func (q *Queue) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	q.drainRemaining(ctx)
}

func (q *Queue) drainRemaining(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req, ok := q.pop()
		if !ok {
			return
		}
		q.process(ctx, req)
	}
}

func (q *Queue) process(ctx context.Context, req SaveRequest) {
	data, err := EncodeJPEG(req.Image, req.Quality)
	if err != nil {
		slog.Error("encode persisted image", "path", req.AbsPath, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(req.AbsPath), 0o755); err != nil {
		slog.Error("create image directory", "path", req.AbsPath, "error", err)
		return
	}
	if err := os.WriteFile(req.AbsPath, data, 0o644); err != nil {
		slog.Error("write persisted image", "path", req.AbsPath, "error", err)
		return
	}

	if q.mirror != nil && req.MirrorKey != "" {
		if err := q.mirror.PutObject(ctx, req.MirrorKey, data, "image/jpeg"); err != nil {
			slog.Error("mirror upload failed", "key", req.MirrorKey, "error", err)
		}
	}
}

// EncodeJPEG converts a raw Image (BGR or grayscale, 8-bit) into a
// JPEG byte stream at the given quality. Also used by the
// Orchestrator to push result images to the UI collaborator.
func EncodeJPEG(src types.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = 70
	}
	var img image.Image
	switch src.Channels {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, src.Width, src.Height))
		copy(gray.Pix, src.Pix)
		img = gray
	case 3:
		rgba := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
		for i := 0; i < src.Width*src.Height; i++ {
			b := src.Pix[i*3+0]
			g := src.Pix[i*3+1]
			r := src.Pix[i*3+2]
			rgba.Set(i%src.Width, i/src.Width, color.RGBA{R: r, G: g, B: b, A: 255})
		}
		img = rgba
	default:
		return nil, fmt.Errorf("encode jpeg: unsupported channel count %d", src.Channels)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MirrorKey builds the archive object key for a persisted image:
// Images/{Qualified|Unqualified}/YYYY-MM-DD/HH/{PASS|FAIL}_HHmmssfff.jpg,
// always slash-separated. The local file layout is the same key
// rooted at the storage root.
func MirrorKey(passed bool, ts time.Time) string {
	qualifier := "Unqualified"
	status := "FAIL"
	if passed {
		qualifier = "Qualified"
		status = "PASS"
	}
	file := fmt.Sprintf("%s_%s.jpg", status, removeDot(ts.Format("150405.000")))
	return path.Join("Images", qualifier, ts.Format("2006-01-02"), ts.Format("15"), file)
}

// ImagePath builds the on-disk destination for a persisted image:
// MirrorKey's layout rooted at the storage root.
func ImagePath(storageRoot string, passed bool, ts time.Time) string {
	return filepath.Join(storageRoot, filepath.FromSlash(MirrorKey(passed, ts)))
}

// removeDot strips the millisecond separator Go's time layout leaves
// in ("150405.000" -> "150405000"); the filename format carries no
// separator.
func removeDot(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
