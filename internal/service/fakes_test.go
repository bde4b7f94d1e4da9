package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"ytpanel/internal/config"
	"ytpanel/internal/entity"
	"ytpanel/internal/poller"
	"ytpanel/pkg/logger"
)

const (
	testURL      = "https://example.com/watch?v=1"
	testInterval = time.Second
)

var errBoom = errors.New("boom")

// fakeBackend is an in-memory Backend with per-job progress scripts.
type fakeBackend struct {
	mu sync.Mutex

	meta       *entity.VideoMetadata
	analyzeErr error
	startErr   error
	listErr    error
	fetchErr   error
	list       []entity.CompletedDownload
	scripts    [][]entity.DownloadJob
	progressFn func(id string) error

	// startGate and fetchGate, when set, hold the call until closed.
	startGate chan struct{}
	fetchGate chan struct{}

	nextID   int
	steps    map[string]int
	started  map[string][]entity.DownloadJob
	requests []entity.DownloadRequest
	calls    map[string]int
	fetched  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		steps:   make(map[string]int),
		started: make(map[string][]entity.DownloadJob),
		calls:   make(map[string]int),
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		n += c
	}

	return n
}

func (f *fakeBackend) ExtractInfo(_ context.Context, _ string) (*entity.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["analyze"]++

	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}

	meta := *f.meta

	return &meta, nil
}

func (f *fakeBackend) StartDownload(ctx context.Context, req entity.DownloadRequest) (string, error) {
	if err := f.wait(ctx, f.gate(&f.startGate)); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["start"]++
	f.requests = append(f.requests, req)

	if f.startErr != nil {
		return "", f.startErr
	}

	f.nextID++
	id := strconv.Itoa(f.nextID)

	var script []entity.DownloadJob
	if len(f.scripts) > 0 {
		script = f.scripts[0]
		f.scripts = f.scripts[1:]
	}

	f.started[id] = script

	return id, nil
}

func (f *fakeBackend) Progress(_ context.Context, id string) (*entity.DownloadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["progress"]++

	if f.progressFn != nil {
		if err := f.progressFn(id); err != nil {
			return nil, err
		}
	}

	script := f.started[id]
	if len(script) == 0 {
		return &entity.DownloadJob{DownloadID: id, Status: entity.JobStatusDownloading}, nil
	}

	job := script[min(f.steps[id], len(script)-1)]
	f.steps[id]++
	job.DownloadID = id

	if job.Status == entity.JobStatusCompleted {
		f.list = append(f.list, entity.CompletedDownload{DownloadID: id, Filename: job.Filename, Ready: true})
	}

	return &job, nil
}

func (f *fakeBackend) ListDownloads(_ context.Context) ([]entity.CompletedDownload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["list"]++

	if f.listErr != nil {
		return nil, f.listErr
	}

	return append([]entity.CompletedDownload{}, f.list...), nil
}

func (f *fakeBackend) FetchFile(ctx context.Context, id string, dst io.Writer) (int64, error) {
	if err := f.wait(ctx, f.gate(&f.fetchGate)); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls["fetch"]++
	f.fetched = append(f.fetched, id)

	if f.fetchErr != nil {
		return 0, f.fetchErr
	}

	n, err := io.WriteString(dst, "content-"+id)

	return int64(n), err
}

func (f *fakeBackend) gate(ch *chan struct{}) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return *ch
}

func (f *fakeBackend) wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) FileURL(id string) string {
	return "http://backend.test/download_file/" + id
}

// recView records every call as a line.
type recView struct {
	mu    sync.Mutex
	lines []string

	startEnabled bool
	progress     int
	progressOn   bool
	status       string
	section      Section
	visible      map[Section]bool
	info         *Info
	video, audio []entity.FormatOption
	links        []DownloadLink
	placeholders int
	listRenders  int
	analyzing    []bool
}

func (v *recView) record(format string, args ...any) {
	v.lines = append(v.lines, fmt.Sprintf(format, args...))
}

func (v *recView) Notify(level Level, msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("notify %s %s", level, msg)
}

func (v *recView) SetAnalyzing(busy bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.analyzing = append(v.analyzing, busy)
}

func (v *recView) ShowInfo(info Info) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info = &info
}

func (v *recView) HideInfo() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info = nil
}

func (v *recView) ShowFormats(video, audio []entity.FormatOption) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.video, v.audio = video, audio
}

func (v *recView) ShowSection(active Section, visible map[Section]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.section, v.visible = active, visible
}

func (v *recView) SetStartEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.startEnabled = enabled
}

func (v *recView) ShowProgress(percent int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.progress, v.progressOn = percent, true
}

func (v *recView) HideProgress() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.progressOn = false
}

func (v *recView) SetStatus(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = msg
}

func (v *recView) ShowDownloads(links []DownloadLink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.links = links
	v.listRenders++
}

func (v *recView) ShowEmptyDownloads(_ string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.links = nil
	v.placeholders++
	v.listRenders++
}

func (v *recView) notifications() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return append([]string(nil), v.lines...)
}

func newTestPanel(t *testing.T, be *fakeBackend) (*Panel, *recView, *poller.Poller) {
	t.Helper()

	cfg := &config.Config{
		Dir:  config.Dir{Downloads: t.TempDir()},
		Poll: config.Poll{Interval: testInterval},
	}

	view := &recView{}
	pl := poller.New(logger.Discard(), be, cfg.Poll.Interval, nil)
	p := New(logger.Discard(), cfg, be, pl, view, nil)

	t.Cleanup(p.Close)

	return p, view, pl
}

func testMeta() *entity.VideoMetadata {
	d := 3725.0

	return &entity.VideoMetadata{
		Title:    "Test Clip",
		Uploader: "Uploader",
		Duration: &d,
		VideoFormats: []entity.FormatOption{
			{FormatID: "137", Description: "1080p mp4"},
			{FormatID: "22", Description: "720p mp4"},
		},
		AudioFormats: []entity.FormatOption{
			{FormatID: "140", Description: "m4a 128k"},
		},
	}
}
