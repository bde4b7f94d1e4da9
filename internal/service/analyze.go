package service

import (
	"context"
	"log/slog"
	"strings"

	"ytpanel/internal/backend"
	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/errs"
	"ytpanel/pkg/urls"
)

// validateURL trims raw and checks it is an absolute http(s) URL.
func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return "", errs.New(errs.ErrInvalidInput, consts.MsgEnterURL, nil)
	}

	if !urls.IsURLValid(raw) {
		return "", errs.New(errs.ErrInvalidInput, consts.MsgInvalidURL, nil)
	}

	return urls.Normalize(raw), nil
}

// Analyze requests metadata for rawURL and rebuilds both format catalogs.
// Invalid input is rejected without a network call.
func (p *Panel) Analyze(ctx context.Context, rawURL string) (*entity.VideoMetadata, error) {
	log := p.log.With(slog.String("func", "Analyze"))

	rawURL, err := validateURL(rawURL)
	if err != nil {
		p.metrics.RecordAnalysis("invalid")
		p.view.Notify(LevelError, errs.Message(err, consts.MsgInvalidURL))

		return nil, err
	}

	p.mu.Lock()
	if p.analyzing {
		p.mu.Unlock()
		p.view.Notify(LevelInfo, consts.MsgAnalyzeInProgress)

		return nil, errs.New(errs.ErrInvalidInput, consts.MsgAnalyzeInProgress, nil)
	}

	p.analyzing = true
	p.url = rawURL
	p.mu.Unlock()

	p.view.SetAnalyzing(true)
	p.view.HideInfo()
	p.view.HideProgress()

	defer func() {
		p.mu.Lock()
		p.analyzing = false
		p.mu.Unlock()

		p.view.SetAnalyzing(false)
	}()

	meta, err := p.backend.ExtractInfo(ctx, rawURL)
	if err != nil {
		msg := backend.BackendMessage(err)
		if msg == "" {
			msg = consts.MsgAnalyzeFailed
		}

		log.ErrorContext(ctx, "extract info", slog.String("url", rawURL), slog.Any("error", err))
		p.metrics.RecordAnalysis("error")
		p.view.Notify(LevelError, msg)

		return nil, errs.New(errs.ErrAnalysis, msg, err)
	}

	catalog := NewCatalog(meta)

	p.mu.Lock()
	p.meta = meta
	p.catalog = catalog
	p.videoFormat = consts.FormatBest
	p.audioFormat = consts.FormatBest
	p.mu.Unlock()

	log.InfoContext(ctx, "video analyzed", slog.Any("meta", meta))
	p.metrics.RecordAnalysis("success")

	p.view.ShowInfo(InfoFor(meta))
	p.view.ShowFormats(catalog.Video, catalog.Audio)
	p.view.Notify(LevelSuccess, consts.MsgAnalyzed)

	return meta, nil
}
