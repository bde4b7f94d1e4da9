package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ytpanel/internal/backend"
	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/errs"
	"ytpanel/internal/poller"
	"ytpanel/pkg/calc"
	"ytpanel/pkg/shellquote"
)

// StartDownload starts a job for the current URL, type and format and hands
// its id to the poller. ctx bounds the polling session.
func (p *Panel) StartDownload(ctx context.Context) (string, error) {
	log := p.log.With(slog.String("func", "StartDownload"))

	p.mu.Lock()
	rawURL := p.url
	req := entity.DownloadRequest{Type: p.dlType, Format: p.resolveFormatLocked()}
	p.mu.Unlock()

	rawURL, err := validateURL(rawURL)
	if err != nil {
		p.metrics.RecordDownloadStart(string(req.Type), "invalid")
		p.view.Notify(LevelError, errs.Message(err, consts.MsgEnterURL))

		return "", err
	}

	req.URL = rawURL

	// the previous job is superseded from here on, its hooks no longer
	// touch the start action, progress or status line
	p.mu.Lock()
	prevID, prevProgress := p.downloadID, p.progress
	p.downloadID = ""
	p.mu.Unlock()

	if prevID != "" {
		log.InfoContext(ctx, "replacing tracked download", slog.String("download_id", prevID))
		p.view.Notify(LevelInfo, consts.MsgDownloadInFlight)
	}

	p.setStartEnabled(false)
	p.setProgress(0)
	p.view.ShowProgress(0)
	p.view.SetStatus("")

	id, err := p.backend.StartDownload(ctx, req)
	if err != nil {
		msg := backend.BackendMessage(err)
		if msg == "" {
			msg = consts.MsgStartFailed
		}

		log.ErrorContext(ctx, "start download", slog.Any("request", req), slog.Any("error", err))
		p.metrics.RecordDownloadStart(string(req.Type), "error")

		if p.restore(prevID, prevProgress) {
			p.view.ShowProgress(prevProgress)
		} else {
			p.setStartEnabled(true)
			p.view.HideProgress()
		}

		p.view.Notify(LevelError, msg)

		return "", errs.New(errs.ErrStart, msg, err)
	}

	p.mu.Lock()
	p.downloadID = id
	p.mu.Unlock()

	log.InfoContext(ctx, "download started", slog.String("download_id", id), slog.Any("request", req))
	p.metrics.RecordDownloadStart(string(req.Type), "success")
	p.view.Notify(LevelSuccess, consts.MsgStarted)

	// the mutex is released here: Start waits for the previous session, whose hooks take it
	p.poller.Start(ctx, id, p.hooks())

	return id, nil
}

// TrackedID returns the id of the tracked job, empty when none.
func (p *Panel) TrackedID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.downloadID
}

func (p *Panel) setProgress(percent int) {
	p.mu.Lock()
	p.progress = percent
	p.mu.Unlock()
}

// release clears the tracked id if it is still downloadID.
func (p *Panel) release(downloadID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.downloadID != downloadID {
		return false
	}

	p.downloadID = ""

	return true
}

// restore tracks prevID again after a failed start, provided its session is
// still polling. The check runs under the mutex so a terminal hook either
// sees the restored id or the session is already past polling.
func (p *Panel) restore(prevID string, progress int) bool {
	if prevID == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.poller.Current()
	if p.downloadID != "" || s == nil || s.ID() != prevID || s.State() != poller.StatePolling {
		return false
	}

	p.downloadID = prevID
	p.progress = progress

	return true
}

func (p *Panel) hooks() poller.Hooks {
	return poller.Hooks{
		OnProgress:  p.onProgress,
		OnCompleted: p.onCompleted,
		OnFailed:    p.onFailed,
		OnAbandoned: p.onAbandoned,
	}
}

func (p *Panel) onProgress(_ context.Context, downloadID string, percent int) {
	p.mu.Lock()
	current := p.downloadID == downloadID
	if current {
		p.progress = percent
	}
	p.mu.Unlock()

	if current {
		p.view.ShowProgress(percent)
	}
}

func (p *Panel) onCompleted(ctx context.Context, job entity.DownloadJob) {
	log := p.log.With(slog.String("func", "onCompleted"), slog.String("download_id", job.DownloadID))

	name := localName(job.Filename)
	fileURL := p.backend.FileURL(job.DownloadID)

	if p.release(job.DownloadID) {
		p.setProgress(100)
		p.view.ShowProgress(100)
		p.view.SetStatus(fmt.Sprintf("%s If the file was not saved, run: %s",
			consts.MsgCompleted, shellquote.Command("curl", "-fL", "-o", name, fileURL)))
		p.setStartEnabled(true)
	} else {
		log.DebugContext(ctx, "completed job is no longer tracked")
	}

	p.view.Notify(LevelSuccess, consts.MsgCompleted)

	path, n, err := p.fetchFile(ctx, job.DownloadID, name)
	if err != nil {
		log.ErrorContext(ctx, "fetch file", slog.Any("error", err))
		p.view.Notify(LevelError, consts.MsgFetchFailed)
	} else {
		log.InfoContext(ctx, "file saved", slog.String("path", path), slog.Int64("bytes", n))
		p.metrics.RecordFetchedBytes(n)
		p.view.Notify(LevelSuccess, fmt.Sprintf("%s %s (%s)", consts.MsgSaved, path, calc.FileSize(n)))
	}

	if ctx.Err() != nil {
		return
	}

	if _, err := p.ListDownloads(ctx); err != nil {
		log.WarnContext(ctx, "refresh after completion", slog.Any("error", err))
	}
}

func (p *Panel) onFailed(ctx context.Context, job entity.DownloadJob) {
	msg := job.Error
	if msg == "" {
		msg = consts.MsgUnknownError
	}

	err := errs.New(errs.ErrJob, msg, nil)
	p.log.WarnContext(ctx, "download failed", slog.String("download_id", job.DownloadID), slog.Any("error", err))

	if !p.release(job.DownloadID) {
		return
	}

	p.view.SetStatus(consts.MsgDownloadFailed + ": " + msg)
	p.setStartEnabled(true)
	p.view.Notify(LevelError, consts.MsgDownloadFailed)
}

func (p *Panel) onAbandoned(ctx context.Context, downloadID string, cause error) {
	err := errs.New(errs.ErrPollTransport, consts.MsgProgressLost, cause)
	p.log.ErrorContext(ctx, "progress polling abandoned", slog.String("download_id", downloadID), slog.Any("error", err))

	if !p.release(downloadID) {
		return
	}

	p.setStartEnabled(true)
	p.view.HideProgress()
	p.view.Notify(LevelError, consts.MsgProgressLost)
}

// localName strips directories from a backend filename.
func localName(filename string) string {
	name := filepath.Base(filepath.Clean("/" + filepath.ToSlash(filename)))
	if name == "/" || name == "." || name == "" {
		return consts.DefaultFilename
	}

	return name
}

// fetchFile streams the job's file into the downloads directory.
// The file only appears under its final name once fully written.
func (p *Panel) fetchFile(ctx context.Context, downloadID, name string) (string, int64, error) {
	dir := p.cfg.Dir.Downloads

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, errs.New(errs.ErrFetch, consts.MsgFetchFailed, fmt.Errorf("create downloads dir: %w", err))
	}

	tmp, err := os.CreateTemp(dir, "."+name+".part-*")
	if err != nil {
		return "", 0, errs.New(errs.ErrFetch, consts.MsgFetchFailed, fmt.Errorf("create temp file: %w", err))
	}

	n, err := p.backend.FetchFile(ctx, downloadID, tmp)
	err = errors.Join(err, tmp.Close())

	if err != nil {
		_ = os.Remove(tmp.Name())

		return "", n, errs.New(errs.ErrFetch, consts.MsgFetchFailed, err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return "", n, errs.New(errs.ErrFetch, consts.MsgFetchFailed, fmt.Errorf("rename: %w", err))
	}

	return path, n, nil
}
