// Package export runs the tab export pipeline: credentials, tab collection,
// content extraction, organization, rendering and delivery.
package export

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgnsrekt/tabmark/internal/document"
	"github.com/dgnsrekt/tabmark/internal/download"
	"github.com/dgnsrekt/tabmark/internal/extract"
	"github.com/dgnsrekt/tabmark/internal/metrics"
	"github.com/dgnsrekt/tabmark/internal/types"
	"github.com/google/uuid"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseCollectingTabs    Phase = "collecting_tabs"
	PhaseExtractingContent Phase = "extracting_content"
	PhaseOrganizing        Phase = "organizing"
	PhaseRendering         Phase = "rendering"
	PhaseDownloading       Phase = "downloading"
	PhaseDone              Phase = "done"
	PhaseFailed            Phase = "failed"
)

// TabSource lists the current window's tabs and snapshots their DOM.
type TabSource interface {
	ListTabs(ctx context.Context) ([]types.TabInfo, error)
	Snapshot(ctx context.Context, tabID string) (types.PageSnapshot, error)
}

type Credentials interface {
	Token(ctx context.Context) (types.Token, error)
}

type Organizer interface {
	Organize(ctx context.Context, records []types.TabRecord, token types.Token) (string, error)
}

// Result describes a delivered export document.
type Result struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	TabCount    int       `json:"tab_count"`
	Fallback    bool      `json:"fallback"`
	GeneratedAt time.Time `json:"generated_at"`
	Bytes       int       `json:"bytes"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Phase         Phase      `json:"phase"`
	ExportID      string     `json:"export_id,omitempty"`
	TabsTotal     int        `json:"tabs_total"`
	TabsProcessed int        `json:"tabs_processed"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastResult    *Result    `json:"last_result,omitempty"`

	// ExtractionErrors lists the tabs of the current export that were kept
	// without content.
	ExtractionErrors []string `json:"extraction_errors,omitempty"`
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

type Coordinator struct {
	tabs      TabSource
	creds     Credentials
	organizer Organizer
	saver     download.Saver
	metrics   *metrics.Collector
	now       func() time.Time

	// running is held for the duration of one export.
	running sync.Mutex

	mu     sync.RWMutex
	status Status
}

func NewCoordinator(tabs TabSource, creds Credentials, organizer Organizer, saver download.Saver, m *metrics.Collector, opts ...Option) *Coordinator {
	c := &Coordinator{
		tabs:      tabs,
		creds:     creds,
		organizer: organizer,
		saver:     saver,
		metrics:   m,
		now:       time.Now,
		status:    Status{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.status
	st.ExtractionErrors = slices.Clone(st.ExtractionErrors)
	return st
}

func (c *Coordinator) update(fn func(*Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
}

func (c *Coordinator) phase(p Phase) {
	c.update(func(s *Status) { s.Phase = p })
}

// TabCount reports how many tabs the current window has.
func (c *Coordinator) TabCount(ctx context.Context) (int, error) {
	tabs, err := c.tabs.ListTabs(ctx)
	if err != nil {
		return 0, tabError(err)
	}
	return len(tabs), nil
}

// Export runs one export. Only one export runs at a time; a concurrent call
// fails with EXPORT_IN_PROGRESS.
func (c *Coordinator) Export(ctx context.Context) (Result, error) {
	if !c.running.TryLock() {
		return Result{}, types.NewError(types.CodeExportInProgress, "an export is already running", nil)
	}
	defer c.running.Unlock()

	id := uuid.NewString()
	started := c.now()
	c.update(func(s *Status) {
		*s = Status{Phase: PhaseCollectingTabs, ExportID: id, StartedAt: &started, LastResult: s.LastResult}
	})
	log := slog.With("export_id", id)

	res, err := c.run(ctx, id, log)
	finished := c.now()
	if err != nil {
		log.Error("Export failed", "error", err)
		c.metrics.RecordExport("failed")
		c.update(func(s *Status) {
			s.Phase = PhaseFailed
			s.FinishedAt = &finished
			s.LastError = err.Error()
		})
		return Result{}, err
	}

	result := "organized"
	if res.Fallback {
		result = "fallback"
	}
	c.metrics.RecordExport(result)
	c.update(func(s *Status) {
		s.Phase = PhaseDone
		s.FinishedAt = &finished
		s.LastResult = &res
	})
	log.Info("Export finished", "tab_count", res.TabCount, "fallback", res.Fallback, "filename", res.Filename)
	return res, nil
}

func (c *Coordinator) run(ctx context.Context, id string, log *slog.Logger) (Result, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return Result{}, err
	}

	tabs, err := c.tabs.ListTabs(ctx)
	if err != nil {
		return Result{}, tabError(err)
	}
	log.Info("Export started", "tab_count", len(tabs))

	c.update(func(s *Status) {
		s.Phase = PhaseExtractingContent
		s.TabsTotal = len(tabs)
	})
	records, err := c.collect(ctx, tabs, log)
	if err != nil {
		return Result{}, err
	}

	c.phase(PhaseOrganizing)
	fallback := false
	body, err := c.organizer.Organize(ctx, records, token)
	now := c.now()

	c.phase(PhaseRendering)
	var doc string
	if err != nil {
		log.Warn("Organizer failed, using fallback document", "error", err)
		doc = document.RenderFallback(records, now)
		fallback = true
	} else {
		doc = document.Render(body, len(records), now)
	}

	c.phase(PhaseDownloading)
	name := document.Filename(now)
	saved, err := c.saver.Save(ctx, name, []byte(doc))
	if err != nil {
		return Result{}, types.NewError(types.CodeDownloadFailure, "failed to save export", err)
	}

	return Result{
		ID:          id,
		Filename:    name,
		Path:        saved.Path,
		DownloadURL: saved.URL,
		TabCount:    len(records),
		Fallback:    fallback,
		GeneratedAt: now,
		Bytes:       len(doc),
	}, nil
}

// collect builds one record per tab in order. Extraction errors leave the
// record without content.
func (c *Coordinator) collect(ctx context.Context, tabs []types.TabInfo, log *slog.Logger) ([]types.TabRecord, error) {
	records := make([]types.TabRecord, 0, len(tabs))
	for i, tab := range tabs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := types.TabRecord{Title: tab.Title, URL: tab.URL}
		if rec.Title == "" {
			rec.Title = "Untitled"
		}

		switch {
		case !tab.Fetchable():
			c.metrics.RecordExtraction("skipped")
		default:
			snap, err := c.tabs.Snapshot(ctx, tab.ID)
			if err != nil {
				err = types.NewError(types.CodeExtractionFailure, "extract "+tab.URL, err)
				log.Debug("Extraction failed", "tab_id", tab.ID, "error", err)
				c.metrics.RecordExtraction("error")
				c.update(func(s *Status) { s.ExtractionErrors = append(s.ExtractionErrors, err.Error()) })
				break
			}
			content := extract.FromSnapshot(snap)
			rec.Content = &content
			c.metrics.RecordExtraction("ok")
		}

		records = append(records, rec)
		c.update(func(s *Status) { s.TabsProcessed = i + 1 })
	}
	return records, nil
}

func tabError(err error) error {
	var coded *types.CodedError
	if errors.As(err, &coded) {
		return err
	}
	return types.NewError(types.CodeCDPUnavailable, "failed to list tabs", err)
}
