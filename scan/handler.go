package scan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rfidscan/reader"
)

// DefaultTimeout bounds a single scan when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Mode selects how a tag is read.
type Mode string

const (
	// ModeDefault reads the tag id and its stored text.
	ModeDefault Mode = "default"
	// ModeNTAG203 reads the uid from raw page 0 of an NTAG203.
	ModeNTAG203 Mode = "ntag203"
)

// ParseMode maps the tag query parameter to a Mode. Matching is case
// insensitive; unknown values select ModeDefault.
func ParseMode(tag string) Mode {
	if strings.EqualFold(tag, string(ModeNTAG203)) {
		return ModeNTAG203
	}
	return ModeDefault
}

// Status is the outcome of a scan.
type Status string

const (
	StatusFound   Status = "found"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Event describes a finished scan.
type Event struct {
	ScanID   string
	Mode     Mode
	Status   Status
	TagID    string
	Err      error
	Duration time.Duration
}

// Notifier is told about scans as they start and finish.
type Notifier interface {
	ScanStarted(scanID string, mode Mode)
	ScanFinished(evt Event)
}

type nopNotifier struct{}

func (nopNotifier) ScanStarted(string, Mode) {}
func (nopNotifier) ScanFinished(Event)       {}

// Handler serves GET /scan.
type Handler struct {
	dev      reader.Device
	log      *zap.Logger
	timeout  time.Duration
	interval time.Duration
	notifier Notifier
	ctx      context.Context

	// mu serializes attempts against dev.
	mu sync.Mutex
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout sets the scan timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// WithInterval sets the pause between attempts.
func WithInterval(d time.Duration) Option {
	return func(h *Handler) { h.interval = d }
}

// WithNotifier registers n for scan events.
func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// WithContext bounds every scan by ctx instead of the request context, so
// a client hanging up does not stop a scan but shutting down does.
func WithContext(ctx context.Context) Option {
	return func(h *Handler) { h.ctx = ctx }
}

// NewHandler returns a Handler reading from dev.
func NewHandler(dev reader.Device, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		dev:      dev,
		log:      log,
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		notifier: nopNotifier{},
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type scanResponse struct {
	ID   string  `json:"id"`
	Text *string `json:"text,omitempty"`
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mode := ParseMode(r.URL.Query().Get("tag"))
	scanID := uuid.NewString()
	log := h.log.With(zap.String("scan_id", scanID), zap.String("mode", string(mode)))

	h.notifier.ScanStarted(scanID, mode)
	start := time.Now()

	tag, err := h.scan(mode)

	evt := Event{ScanID: scanID, Mode: mode, Duration: time.Since(start)}
	defer func() { h.notifier.ScanFinished(evt) }()

	switch {
	case err == nil:
		evt.Status = StatusFound
		evt.TagID = tag.ID

		resp := scanResponse{ID: tag.ID}
		if mode == ModeDefault {
			text := strings.ReplaceAll(tag.Text, "\x00", "")
			resp.Text = &text
		}

		log.Info("Scanned ID", zap.String("tag_id", tag.ID))
		if err := writeJSON(w, resp); err != nil {
			log.Debug("Failed to write response", zap.Error(err))
		}

	case errors.Is(err, ErrNoTag):
		evt.Status = StatusTimeout
		log.Warn("No ID found before timeout", zap.Duration("timeout", h.timeout))
		w.WriteHeader(http.StatusRequestTimeout)

	default:
		evt.Status = StatusError
		evt.Err = err
		log.Error("Error during operation", zap.Error(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		if _, werr := io.WriteString(w, err.Error()); werr != nil {
			log.Debug("Failed to write response", zap.Error(werr))
		}
	}
}

func (h *Handler) scan(mode Mode) (reader.Tag, error) {
	read := h.dev.TryRead
	if mode == ModeNTAG203 {
		pages, ok := h.dev.(reader.PageReader)
		if !ok {
			return reader.Tag{}, ErrPagesUnsupported
		}
		read = func() (reader.Tag, bool, error) {
			return readNTAG203(pages)
		}
	}

	return Poll(h.ctx, h.timeout, h.interval, func() (reader.Tag, bool, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return read()
	})
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
