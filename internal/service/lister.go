package service

import (
	"context"
	"log/slog"

	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/errs"
)

// ListDownloads fetches completed jobs and renders them with direct links,
// or the placeholder when there are none. Failures are not retried.
func (p *Panel) ListDownloads(ctx context.Context) ([]entity.CompletedDownload, error) {
	list, err := p.backend.ListDownloads(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "list downloads", slog.Any("error", err))
		p.metrics.RecordList("error")
		p.view.Notify(LevelError, consts.MsgListFailed)

		return nil, errs.New(errs.ErrList, consts.MsgListFailed, err)
	}

	p.metrics.RecordList("success")

	if len(list) == 0 {
		p.view.ShowEmptyDownloads(consts.MsgNoDownloads)

		return list, nil
	}

	links := make([]DownloadLink, 0, len(list))
	for _, d := range list {
		links = append(links, DownloadLink{
			DownloadID: d.DownloadID,
			Filename:   d.Filename,
			URL:        p.backend.FileURL(d.DownloadID),
		})
	}

	p.view.ShowDownloads(links)

	return list, nil
}
