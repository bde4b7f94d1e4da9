// Package service implements the download panel: analysis, format
// selection, job start, progress tracking and the completed downloads list.
package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"ytpanel/internal/backend"
	"ytpanel/internal/config"
	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/errs"
	"ytpanel/internal/observability"
	"ytpanel/internal/poller"
)

// Backend is the download service as seen by the panel.
type Backend interface {
	ExtractInfo(ctx context.Context, rawURL string) (*entity.VideoMetadata, error)
	StartDownload(ctx context.Context, req entity.DownloadRequest) (string, error)
	Progress(ctx context.Context, downloadID string) (*entity.DownloadJob, error)
	ListDownloads(ctx context.Context) ([]entity.CompletedDownload, error)
	FetchFile(ctx context.Context, downloadID string, dst io.Writer) (int64, error)
	FileURL(downloadID string) string
}

var _ Backend = (*backend.Client)(nil)

// Level is the severity of a notification.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// DownloadLink is one rendered entry of the completed list.
type DownloadLink struct {
	DownloadID string
	Filename   string
	URL        string
}

// View renders panel state. Calls may come from the command goroutine or
// from a polling session, implementations must be safe for concurrent use.
type View interface {
	Notify(level Level, msg string)
	SetAnalyzing(busy bool)
	ShowInfo(info Info)
	HideInfo()
	ShowFormats(video, audio []entity.FormatOption)
	ShowSection(active Section, visible map[Section]bool)
	SetStartEnabled(enabled bool)
	ShowProgress(percent int)
	HideProgress()
	SetStatus(msg string)
	ShowDownloads(links []DownloadLink)
	ShowEmptyDownloads(placeholder string)
}

// Panel is the download lifecycle client.
type Panel struct {
	log     *slog.Logger
	cfg     *config.Config
	backend Backend
	poller  *poller.Poller
	view    View
	metrics *observability.Metrics

	mu           sync.Mutex
	url          string
	meta         *entity.VideoMetadata
	catalog      Catalog
	dlType       entity.DownloadType
	videoFormat  string
	audioFormat  string
	downloadID   string
	progress     int
	analyzing    bool
	startEnabled bool
}

// New creates a Panel with the video type selected. metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, be Backend, pl *poller.Poller, view View, metrics *observability.Metrics) *Panel {
	return &Panel{
		log:          log.With(slog.String("package", "service")),
		cfg:          cfg,
		backend:      be,
		poller:       pl,
		view:         view,
		metrics:      metrics,
		catalog:      NewCatalog(nil),
		dlType:       entity.DownloadTypeVideo,
		videoFormat:  consts.FormatBest,
		audioFormat:  consts.FormatBest,
		startEnabled: true,
	}
}

// Init applies the default type selection and loads the completed list.
func (p *Panel) Init(ctx context.Context) {
	p.mu.Lock()
	t := p.dlType
	p.mu.Unlock()

	p.view.ShowSection(SectionFor(t), Visibility(t))
	p.view.SetStartEnabled(true)

	if _, err := p.ListDownloads(ctx); err != nil {
		p.log.WarnContext(ctx, "initial downloads list failed", slog.Any("error", err))
	}
}

// Close stops any polling session. It is safe to call more than once.
func (p *Panel) Close() {
	p.poller.Stop()
}

// SelectType switches the download type and the visible section.
func (p *Panel) SelectType(raw string) (entity.DownloadType, error) {
	t, err := entity.ParseDownloadType(raw)
	if err != nil {
		e := errs.New(errs.ErrInvalidInput, consts.MsgUnknownType, err)
		p.view.Notify(LevelError, e.Message)

		return "", e
	}

	p.mu.Lock()
	p.dlType = t
	p.mu.Unlock()

	p.view.ShowSection(SectionFor(t), Visibility(t))

	return t, nil
}

// SelectFormat picks formatID from the catalog of the current type.
// Only ids from the latest analysis, or "best", are accepted.
func (p *Panel) SelectFormat(formatID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.catalog.Contains(p.dlType, formatID) {
		e := errs.New(errs.ErrInvalidInput, consts.MsgUnknownFormat, nil)
		p.view.Notify(LevelError, e.Message)

		return e
	}

	switch p.dlType {
	case entity.DownloadTypeVideo:
		p.videoFormat = formatID
	case entity.DownloadTypeAudio:
		p.audioFormat = formatID
	}

	return nil
}

// Formats returns the catalog of the current type with the selected id.
func (p *Panel) Formats() ([]entity.FormatOption, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.catalog.Options(p.dlType), p.resolveFormatLocked()
}

// ResolveFormat returns the format sent with the next start request.
func (p *Panel) ResolveFormat() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resolveFormatLocked()
}

func (p *Panel) resolveFormatLocked() string {
	switch p.dlType {
	case entity.DownloadTypeVideo:
		return p.videoFormat
	case entity.DownloadTypeAudio:
		return p.audioFormat
	default:
		return consts.FormatBest
	}
}

func (p *Panel) setStartEnabled(enabled bool) {
	p.mu.Lock()
	p.startEnabled = enabled
	p.mu.Unlock()

	p.view.SetStartEnabled(enabled)
}

// Snapshot is a point-in-time copy of the panel state.
type Snapshot struct {
	URL          string              `json:"url,omitempty"`
	Title        string              `json:"title,omitempty"`
	Type         entity.DownloadType `json:"type"`
	Format       string              `json:"format"`
	DownloadID   string              `json:"download_id,omitempty"`
	SessionState string              `json:"session_state,omitempty"`
	Progress     int                 `json:"progress"`
	Analyzing    bool                `json:"analyzing"`
	StartEnabled bool                `json:"start_enabled"`
}

// Snapshot returns the current state.
func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	snap := Snapshot{
		URL:          p.url,
		Type:         p.dlType,
		Format:       p.resolveFormatLocked(),
		DownloadID:   p.downloadID,
		Progress:     p.progress,
		Analyzing:    p.analyzing,
		StartEnabled: p.startEnabled,
	}

	if p.meta != nil {
		snap.Title = p.meta.Title
	}
	p.mu.Unlock()

	if s := p.poller.Current(); s != nil {
		snap.SessionState = s.State().String()
	}

	return snap
}
