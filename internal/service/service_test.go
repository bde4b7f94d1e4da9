package service

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"ytpanel/internal/backend"
	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/errs"
	"ytpanel/internal/poller"
)

func TestAnalyzeInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantMsg string
	}{
		{name: "empty", url: "", wantMsg: consts.MsgEnterURL},
		{name: "whitespace", url: "   \t", wantMsg: consts.MsgEnterURL},
		{name: "no scheme", url: "example.com/video", wantMsg: consts.MsgInvalidURL},
		{name: "garbage", url: "not a url", wantMsg: consts.MsgInvalidURL},
		{name: "unsupported scheme", url: "ftp://example.com/file", wantMsg: consts.MsgInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newFakeBackend()
			p, view, _ := newTestPanel(t, be)

			meta, err := p.Analyze(t.Context(), tt.url)
			if !errors.Is(err, errs.ErrInvalidInput) {
				t.Fatalf("Analyze() error = %v, want invalid input", err)
			}

			if meta != nil {
				t.Errorf("Analyze() meta = %+v, want nil", meta)
			}

			if got := errs.Message(err, ""); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}

			if n := be.total(); n != 0 {
				t.Errorf("backend calls = %d, want 0", n)
			}

			if got := view.notifications(); !slices.Contains(got, "notify error "+tt.wantMsg) {
				t.Errorf("notifications = %v", got)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		analyzeErr error
		wantErr    bool
		wantMsg    string
	}{
		{name: "success"},
		{
			name:       "backend message",
			analyzeErr: &backend.StatusError{Code: 400, Message: "Could not extract video information"},
			wantErr:    true,
			wantMsg:    "Could not extract video information",
		},
		{
			name:       "no backend message",
			analyzeErr: &backend.StatusError{Code: 500},
			wantErr:    true,
			wantMsg:    consts.MsgAnalyzeFailed,
		},
		{
			name:       "transport failure",
			analyzeErr: errBoom,
			wantErr:    true,
			wantMsg:    consts.MsgAnalyzeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newFakeBackend()
			be.meta = testMeta()
			be.analyzeErr = tt.analyzeErr

			p, view, _ := newTestPanel(t, be)

			meta, err := p.Analyze(t.Context(), "  "+testURL+"  ")

			if (err != nil) == (meta != nil) {
				t.Fatalf("Analyze() = %v, %v: want exactly one of error and metadata", meta, err)
			}

			if be.count("analyze") != 1 {
				t.Errorf("extract_info calls = %d, want 1", be.count("analyze"))
			}

			if got := p.Snapshot().URL; got != testURL {
				t.Errorf("stored url = %q, want trimmed %q", got, testURL)
			}

			view.mu.Lock()
			defer view.mu.Unlock()

			if !slices.Equal(view.analyzing, []bool{true, false}) {
				t.Errorf("analyzing transitions = %v, want [true false]", view.analyzing)
			}

			if tt.wantErr {
				if !errors.Is(err, errs.ErrAnalysis) {
					t.Errorf("error = %v, want analysis error", err)
				}

				if got := errs.Message(err, ""); got != tt.wantMsg {
					t.Errorf("message = %q, want %q", got, tt.wantMsg)
				}

				if view.info != nil {
					t.Error("info shown after failed analysis")
				}

				if !slices.Contains(view.lines, "notify error "+tt.wantMsg) {
					t.Errorf("notifications = %v", view.lines)
				}

				return
			}

			if view.info == nil || view.info.Title != "Test Clip" || view.info.Duration != "1:02:05" {
				t.Errorf("info = %+v", view.info)
			}

			if len(view.video) != 3 || view.video[0] != BestOption || view.video[1].FormatID != "137" {
				t.Errorf("video catalog = %+v", view.video)
			}

			if len(view.audio) != 2 || view.audio[0] != BestOption {
				t.Errorf("audio catalog = %+v", view.audio)
			}

			if !slices.Contains(view.lines, "notify success "+consts.MsgAnalyzed) {
				t.Errorf("notifications = %v", view.lines)
			}
		})
	}
}

func TestAnalyzeHidesPreviousResult(t *testing.T) {
	be := newFakeBackend()
	be.meta = testMeta()

	p, view, _ := newTestPanel(t, be)

	if _, err := p.Analyze(t.Context(), testURL); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	be.analyzeErr = errBoom

	if _, err := p.Analyze(t.Context(), testURL); err == nil {
		t.Fatal("second Analyze() succeeded")
	}

	view.mu.Lock()
	defer view.mu.Unlock()

	if view.info != nil || view.progressOn {
		t.Errorf("previous info or progress still shown: info=%v progress=%v", view.info, view.progressOn)
	}
}

func TestAnalyzeWhileBusy(t *testing.T) {
	be := newFakeBackend()
	be.meta = testMeta()

	p, view, _ := newTestPanel(t, be)

	p.mu.Lock()
	p.analyzing = true
	p.mu.Unlock()

	meta, err := p.Analyze(t.Context(), testURL)
	if meta != nil || !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("Analyze() = %v, %v; want invalid input", meta, err)
	}

	if be.count("analyze") != 0 {
		t.Errorf("extract_info calls = %d, want 0", be.count("analyze"))
	}

	if got := view.notifications(); !slices.Contains(got, "notify info "+consts.MsgAnalyzeInProgress) {
		t.Errorf("notifications = %v", got)
	}
}

func TestSelectType(t *testing.T) {
	for _, dt := range entity.DownloadTypes {
		t.Run(string(dt), func(t *testing.T) {
			p, view, _ := newTestPanel(t, newFakeBackend())

			got, err := p.SelectType(strings.ToUpper(string(dt)))
			if err != nil || got != dt {
				t.Fatalf("SelectType() = %v, %v", got, err)
			}

			view.mu.Lock()
			defer view.mu.Unlock()

			shown := 0
			for _, on := range view.visible {
				if on {
					shown++
				}
			}

			if shown != 1 || len(view.visible) != len(Sections) {
				t.Errorf("visible = %v, want exactly one of %d", view.visible, len(Sections))
			}

			if !view.visible[view.section] || view.section != SectionFor(dt) {
				t.Errorf("active section = %v", view.section)
			}
		})
	}

	p, _, _ := newTestPanel(t, newFakeBackend())

	if _, err := p.SelectType("webm"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("SelectType(webm) error = %v", err)
	}

	if got := p.Snapshot().Type; got != entity.DownloadTypeVideo {
		t.Errorf("type after rejected selection = %v", got)
	}
}

func TestInitShowsDefaultSection(t *testing.T) {
	be := newFakeBackend()
	p, view, _ := newTestPanel(t, be)

	p.Init(t.Context())

	view.mu.Lock()
	defer view.mu.Unlock()

	if view.section != SectionVideoFormats || !view.startEnabled {
		t.Errorf("section = %v startEnabled = %v", view.section, view.startEnabled)
	}

	if be.count("list") != 1 || view.placeholders != 1 {
		t.Errorf("list calls = %d placeholders = %d", be.count("list"), view.placeholders)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	be := newFakeBackend()
	be.meta = testMeta()

	p, _, _ := newTestPanel(t, be)

	if got := p.ResolveFormat(); got != consts.FormatBest {
		t.Errorf("ResolveFormat() before analysis = %q", got)
	}

	if err := p.SelectFormat("137"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("SelectFormat before analysis error = %v", err)
	}

	if _, err := p.Analyze(t.Context(), testURL); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	meta := testMeta()

	for _, o := range append([]entity.FormatOption{BestOption}, meta.VideoFormats...) {
		if err := p.SelectFormat(o.FormatID); err != nil {
			t.Fatalf("SelectFormat(%q) error = %v", o.FormatID, err)
		}

		if got := p.ResolveFormat(); got != o.FormatID {
			t.Errorf("ResolveFormat() = %q, want %q", got, o.FormatID)
		}
	}

	if err := p.SelectFormat("140"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("audio id accepted for video: %v", err)
	}

	if got := p.ResolveFormat(); got != "22" {
		t.Errorf("ResolveFormat() after rejected selection = %q, want 22", got)
	}

	if _, err := p.SelectType("audio"); err != nil {
		t.Fatal(err)
	}

	if err := p.SelectFormat("140"); err != nil || p.ResolveFormat() != "140" {
		t.Errorf("audio selection = %q, %v", p.ResolveFormat(), err)
	}

	for _, fixed := range []string{"mp3", "flac", "m4a"} {
		if _, err := p.SelectType(fixed); err != nil {
			t.Fatal(err)
		}

		if got := p.ResolveFormat(); got != consts.FormatBest {
			t.Errorf("%s ResolveFormat() = %q, want best", fixed, got)
		}

		if err := p.SelectFormat("137"); err == nil {
			t.Errorf("%s accepted a catalog format", fixed)
		}
	}

	if _, err := p.SelectType("video"); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Analyze(t.Context(), testURL); err != nil {
		t.Fatal(err)
	}

	if got := p.ResolveFormat(); got != consts.FormatBest {
		t.Errorf("ResolveFormat() after re-analysis = %q, want best", got)
	}
}

func TestStartDownloadInvalidInput(t *testing.T) {
	be := newFakeBackend()
	p, view, _ := newTestPanel(t, be)

	_, err := p.StartDownload(t.Context())
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("StartDownload() error = %v", err)
	}

	if be.total() != 0 {
		t.Errorf("backend calls = %d, want 0", be.total())
	}

	if got := view.notifications(); !slices.Contains(got, "notify error "+consts.MsgEnterURL) {
		t.Errorf("notifications = %v", got)
	}
}

func TestStartDownloadFailure(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		wantMsg  string
	}{
		{name: "backend message", startErr: &backend.StatusError{Code: 400, Message: "URL is required"}, wantMsg: "URL is required"},
		{name: "fallback", startErr: errBoom, wantMsg: consts.MsgStartFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newFakeBackend()
			be.meta = testMeta()
			be.startErr = tt.startErr

			p, view, pl := newTestPanel(t, be)

			if _, err := p.Analyze(t.Context(), testURL); err != nil {
				t.Fatal(err)
			}

			_, err := p.StartDownload(t.Context())
			if !errors.Is(err, errs.ErrStart) || errs.Message(err, "") != tt.wantMsg {
				t.Fatalf("StartDownload() error = %v", err)
			}

			if pl.Current() != nil || p.TrackedID() != "" {
				t.Error("a session was started for a failed start")
			}

			view.mu.Lock()
			defer view.mu.Unlock()

			if !view.startEnabled || view.progressOn {
				t.Errorf("startEnabled = %v progressOn = %v", view.startEnabled, view.progressOn)
			}

			if !slices.Contains(view.lines, "notify error "+tt.wantMsg) {
				t.Errorf("notifications = %v", view.lines)
			}
		})
	}
}

func TestStartDownloadRequest(t *testing.T) {
	tests := []struct {
		dlType     string
		format     string
		wantFormat string
	}{
		{dlType: "video", format: "137", wantFormat: "137"},
		{dlType: "video", wantFormat: consts.FormatBest},
		{dlType: "audio", format: "140", wantFormat: "140"},
		{dlType: "mp3", wantFormat: consts.FormatBest},
		{dlType: "flac", wantFormat: consts.FormatBest},
		{dlType: "m4a", wantFormat: consts.FormatBest},
	}

	for _, tt := range tests {
		t.Run(tt.dlType+"/"+tt.wantFormat, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				be := newFakeBackend()
				be.meta = testMeta()

				p, _, _ := newTestPanel(t, be)

				if _, err := p.Analyze(t.Context(), testURL); err != nil {
					t.Fatal(err)
				}

				if _, err := p.SelectType(tt.dlType); err != nil {
					t.Fatal(err)
				}

				if tt.format != "" {
					if err := p.SelectFormat(tt.format); err != nil {
						t.Fatal(err)
					}
				}

				if _, err := p.StartDownload(t.Context()); err != nil {
					t.Fatal(err)
				}

				p.Close()

				want := entity.DownloadRequest{URL: testURL, Format: tt.wantFormat, Type: entity.DownloadType(tt.dlType)}

				be.mu.Lock()
				defer be.mu.Unlock()

				if len(be.requests) != 1 || be.requests[0] != want {
					t.Errorf("requests = %+v, want %+v", be.requests, want)
				}
			})
		})
	}
}

func TestDownloadCompleted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()
		be.scripts = [][]entity.DownloadJob{{
			{Status: entity.JobStatusDownloading, Progress: 37},
			{Status: entity.JobStatusCompleted, Progress: 100, Filename: "x.mp4"},
		}}

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		id, err := p.StartDownload(t.Context())
		if err != nil {
			t.Fatalf("StartDownload() error = %v", err)
		}

		if p.TrackedID() != id {
			t.Errorf("TrackedID() = %q, want %q", p.TrackedID(), id)
		}

		view.mu.Lock()
		if view.startEnabled || !view.progressOn || view.progress != 0 {
			t.Errorf("while starting: startEnabled=%v progress=%v %d", view.startEnabled, view.progressOn, view.progress)
		}
		view.mu.Unlock()

		time.Sleep(testInterval + testInterval/2)
		synctest.Wait()

		if got := p.Snapshot(); got.Progress != 37 || got.SessionState != "polling" {
			t.Errorf("snapshot after first poll = %+v", got)
		}

		s := pl.Current()
		<-s.Done()

		time.Sleep(5 * testInterval)
		synctest.Wait()

		if s.State() != poller.StateCompleted {
			t.Errorf("state = %v, want completed", s.State())
		}

		if got := be.count("progress"); got != 2 {
			t.Errorf("progress calls = %d, want 2", got)
		}

		if got := be.count("fetch"); got != 1 {
			t.Errorf("fetch calls = %d, want 1", got)
		}

		if got := be.count("list"); got != 1 {
			t.Errorf("list refreshes = %d, want 1", got)
		}

		data, err := os.ReadFile(filepath.Join(p.cfg.Dir.Downloads, "x.mp4"))
		if err != nil || string(data) != "content-"+id {
			t.Errorf("saved file = %q, %v", data, err)
		}

		if p.TrackedID() != "" || pl.Active() != 0 {
			t.Errorf("tracked = %q active = %d", p.TrackedID(), pl.Active())
		}

		view.mu.Lock()
		defer view.mu.Unlock()

		if !view.startEnabled || view.progress != 100 {
			t.Errorf("startEnabled = %v progress = %d", view.startEnabled, view.progress)
		}

		if !strings.Contains(view.status, consts.MsgCompleted) || !strings.Contains(view.status, "curl -fL -o x.mp4") {
			t.Errorf("status = %q", view.status)
		}

		if len(view.links) != 1 || view.links[0].Filename != "x.mp4" || view.links[0].URL != be.FileURL(id) {
			t.Errorf("links = %+v", view.links)
		}
	})
}

func TestDownloadCompletedFetchFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()
		be.fetchErr = errBoom
		be.scripts = [][]entity.DownloadJob{{{Status: entity.JobStatusCompleted, Filename: "../../etc/passwd"}}}

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		if _, err := p.StartDownload(t.Context()); err != nil {
			t.Fatal(err)
		}

		<-pl.Current().Done()
		synctest.Wait()

		if pl.Current().State() != poller.StateCompleted {
			t.Errorf("state = %v, want completed", pl.Current().State())
		}

		if !slices.Contains(view.notifications(), "notify error "+consts.MsgFetchFailed) {
			t.Errorf("notifications = %v", view.notifications())
		}

		entries, err := os.ReadDir(p.cfg.Dir.Downloads)
		if err != nil || len(entries) != 0 {
			t.Errorf("downloads dir = %v, %v", entries, err)
		}
	})
}

func TestDownloadFailed(t *testing.T) {
	tests := []struct {
		name       string
		jobError   string
		wantStatus string
	}{
		{name: "backend message", jobError: "network blocked", wantStatus: "Download failed: network blocked"},
		{name: "no message", wantStatus: "Download failed: " + consts.MsgUnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				be := newFakeBackend()
				be.meta = testMeta()
				be.scripts = [][]entity.DownloadJob{{
					{Status: entity.JobStatusDownloading, Progress: 10},
					{Status: entity.JobStatusError, Error: tt.jobError},
				}}

				p, view, pl := newTestPanel(t, be)

				if _, err := p.Analyze(t.Context(), testURL); err != nil {
					t.Fatal(err)
				}

				if _, err := p.StartDownload(t.Context()); err != nil {
					t.Fatal(err)
				}

				s := pl.Current()
				<-s.Done()

				time.Sleep(5 * testInterval)
				synctest.Wait()

				if s.State() != poller.StateFailed || be.count("progress") != 2 {
					t.Errorf("state = %v progress calls = %d", s.State(), be.count("progress"))
				}

				if p.TrackedID() != "" || be.count("fetch") != 0 {
					t.Errorf("tracked = %q fetch calls = %d", p.TrackedID(), be.count("fetch"))
				}

				view.mu.Lock()
				defer view.mu.Unlock()

				if view.status != tt.wantStatus || !view.startEnabled {
					t.Errorf("status = %q startEnabled = %v", view.status, view.startEnabled)
				}

				if !slices.Contains(view.lines, "notify error "+consts.MsgDownloadFailed) {
					t.Errorf("notifications = %v", view.lines)
				}
			})
		})
	}
}

func TestDownloadAbandoned(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()
		be.progressFn = func(string) error { return errBoom }

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		if _, err := p.StartDownload(t.Context()); err != nil {
			t.Fatal(err)
		}

		s := pl.Current()
		<-s.Done()
		synctest.Wait()

		if s.State() != poller.StateAbandoned || p.TrackedID() != "" {
			t.Errorf("state = %v tracked = %q", s.State(), p.TrackedID())
		}

		view.mu.Lock()
		defer view.mu.Unlock()

		if !view.startEnabled || view.progressOn {
			t.Errorf("startEnabled = %v progressOn = %v", view.startEnabled, view.progressOn)
		}

		if !slices.Contains(view.lines, "notify error "+consts.MsgProgressLost) {
			t.Errorf("notifications = %v", view.lines)
		}
	})
}

func TestSecondStartKeepsOneCadence(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		first, err := p.StartDownload(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		time.Sleep(2*testInterval + testInterval/2)
		synctest.Wait()

		firstSession := pl.Current()

		second, err := p.StartDownload(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		if first == second {
			t.Fatalf("same id %q for both downloads", first)
		}

		if firstSession.State() != poller.StateStopped {
			t.Errorf("first session state = %v, want stopped", firstSession.State())
		}

		if got := pl.Active(); got != 1 {
			t.Errorf("Active() = %d, want 1", got)
		}

		if p.TrackedID() != second || pl.Current().ID() != second {
			t.Errorf("tracked = %q current = %q, want %q", p.TrackedID(), pl.Current().ID(), second)
		}

		before := be.count("progress")

		time.Sleep(3*testInterval + testInterval/4)
		synctest.Wait()

		if got := be.count("progress") - before; got != 3 {
			t.Errorf("progress calls in 3 intervals = %d, want 3", got)
		}

		if !slices.Contains(view.notifications(), "notify info "+consts.MsgDownloadInFlight) {
			t.Errorf("notifications = %v", view.notifications())
		}

		p.Close()

		if pl.Active() != 0 {
			t.Errorf("Active() after Close = %d", pl.Active())
		}
	})
}

func TestReplacementKeepsCompletedFetch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()
		be.scripts = [][]entity.DownloadJob{{{Status: entity.JobStatusCompleted, Filename: "a.mp4"}}}

		gate := make(chan struct{})
		be.fetchGate = gate

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		first, err := p.StartDownload(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		firstSession := pl.Current()

		// the completion hook is now held in the file fetch
		time.Sleep(testInterval + testInterval/2)
		synctest.Wait()

		second, err := p.StartDownload(t.Context())
		if err != nil {
			t.Fatalf("second StartDownload() error = %v", err)
		}

		time.Sleep(testInterval / 5)
		close(gate)
		<-firstSession.Done()
		synctest.Wait()

		data, err := os.ReadFile(filepath.Join(p.cfg.Dir.Downloads, "a.mp4"))
		if err != nil || string(data) != "content-"+first {
			t.Errorf("saved file = %q, %v", data, err)
		}

		if got := be.count("list"); got != 1 {
			t.Errorf("list refreshes = %d, want 1", got)
		}

		if p.TrackedID() != second || pl.Current().ID() != second {
			t.Errorf("tracked = %q current = %q, want %q", p.TrackedID(), pl.Current().ID(), second)
		}

		view.mu.Lock()
		defer view.mu.Unlock()

		if view.startEnabled {
			t.Error("start action enabled while the second job is tracked")
		}
	})
}

func TestCompletionWhileReplacementStarts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()
		be.scripts = [][]entity.DownloadJob{{
			{Status: entity.JobStatusDownloading, Progress: 10},
			{Status: entity.JobStatusCompleted, Filename: "a.mp4"},
		}}

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		if _, err := p.StartDownload(t.Context()); err != nil {
			t.Fatal(err)
		}

		firstSession := pl.Current()

		time.Sleep(testInterval + testInterval/2)
		synctest.Wait()

		gate := make(chan struct{})

		be.mu.Lock()
		be.startGate = gate
		be.mu.Unlock()

		var (
			second   string
			startErr error
		)

		started := make(chan struct{})

		go func() {
			defer close(started)
			second, startErr = p.StartDownload(t.Context())
		}()

		synctest.Wait()

		// the first job completes while the backend holds the second start
		time.Sleep(testInterval)
		<-firstSession.Done()
		synctest.Wait()

		if got := firstSession.State(); got != poller.StateCompleted {
			t.Fatalf("first session state = %v, want completed", got)
		}

		if got := be.count("fetch"); got != 1 {
			t.Errorf("fetch calls = %d, want 1", got)
		}

		close(gate)
		<-started
		synctest.Wait()

		if startErr != nil {
			t.Fatalf("second StartDownload() error = %v", startErr)
		}

		if p.TrackedID() != second {
			t.Errorf("tracked = %q, want %q", p.TrackedID(), second)
		}

		view.mu.Lock()
		defer view.mu.Unlock()

		if view.startEnabled || view.progress != 0 || view.status != "" {
			t.Errorf("startEnabled = %v progress = %d status = %q", view.startEnabled, view.progress, view.status)
		}

		if !slices.Contains(view.lines, "notify success "+consts.MsgCompleted) {
			t.Errorf("notifications = %v", view.lines)
		}
	})
}

func TestFailedReplacementKeepsTracking(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		be := newFakeBackend()
		be.meta = testMeta()
		be.scripts = [][]entity.DownloadJob{{{Status: entity.JobStatusDownloading, Progress: 40}}}

		p, view, pl := newTestPanel(t, be)

		if _, err := p.Analyze(t.Context(), testURL); err != nil {
			t.Fatal(err)
		}

		first, err := p.StartDownload(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		time.Sleep(testInterval + testInterval/2)
		synctest.Wait()

		be.mu.Lock()
		be.startErr = errBoom
		be.mu.Unlock()

		if _, err := p.StartDownload(t.Context()); !errors.Is(err, errs.ErrStart) {
			t.Fatalf("second StartDownload() error = %v", err)
		}

		if p.TrackedID() != first || pl.Current().ID() != first {
			t.Errorf("tracked = %q current = %q, want %q", p.TrackedID(), pl.Current().ID(), first)
		}

		view.mu.Lock()
		if view.startEnabled || !view.progressOn || view.progress != 40 {
			t.Errorf("startEnabled = %v progress = %v %d", view.startEnabled, view.progressOn, view.progress)
		}
		view.mu.Unlock()

		if got := p.Snapshot().Progress; got != 40 {
			t.Errorf("snapshot progress = %d, want 40", got)
		}
	})
}

func TestListDownloads(t *testing.T) {
	t.Run("empty twice renders placeholder twice", func(t *testing.T) {
		be := newFakeBackend()
		p, view, _ := newTestPanel(t, be)

		for range 2 {
			list, err := p.ListDownloads(t.Context())
			if err != nil || list == nil || len(list) != 0 {
				t.Fatalf("ListDownloads() = %v, %v", list, err)
			}
		}

		view.mu.Lock()
		defer view.mu.Unlock()

		if view.placeholders != 2 || view.listRenders != 2 {
			t.Errorf("placeholders = %d renders = %d, want 2", view.placeholders, view.listRenders)
		}
	})

	t.Run("entries link to the backend", func(t *testing.T) {
		be := newFakeBackend()
		be.list = []entity.CompletedDownload{
			{DownloadID: "7", Filename: "a.mp3", Ready: true},
			{DownloadID: "8", Filename: "b.flac", Ready: true},
		}

		p, view, _ := newTestPanel(t, be)

		if _, err := p.ListDownloads(t.Context()); err != nil {
			t.Fatal(err)
		}

		view.mu.Lock()
		defer view.mu.Unlock()

		want := []DownloadLink{
			{DownloadID: "7", Filename: "a.mp3", URL: "http://backend.test/download_file/7"},
			{DownloadID: "8", Filename: "b.flac", URL: "http://backend.test/download_file/8"},
		}

		if !slices.Equal(view.links, want) {
			t.Errorf("links = %+v, want %+v", view.links, want)
		}
	})

	t.Run("failure notifies without retry", func(t *testing.T) {
		be := newFakeBackend()
		be.listErr = errBoom

		p, view, _ := newTestPanel(t, be)

		_, err := p.ListDownloads(t.Context())
		if !errors.Is(err, errs.ErrList) || !errors.Is(err, errBoom) {
			t.Fatalf("ListDownloads() error = %v", err)
		}

		if be.count("list") != 1 {
			t.Errorf("list calls = %d, want 1", be.count("list"))
		}

		if !slices.Contains(view.notifications(), "notify error "+consts.MsgListFailed) {
			t.Errorf("notifications = %v", view.notifications())
		}
	})
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "x.mp4", want: "x.mp4"},
		{in: "sub/dir/x.mp4", want: "x.mp4"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: "", want: consts.DefaultFilename},
		{in: "..", want: consts.DefaultFilename},
		{in: "/", want: consts.DefaultFilename},
	}

	for _, tt := range tests {
		if got := localName(tt.in); got != tt.want {
			t.Errorf("localName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
