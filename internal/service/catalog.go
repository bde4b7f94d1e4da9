package service

import (
	"slices"

	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/pkg/calc"
)

// BestOption is the synthetic first entry of every catalog.
var BestOption = entity.FormatOption{FormatID: consts.FormatBest, Description: consts.FormatBestLabel}

// Catalog holds the selectable formats of the latest analysis.
type Catalog struct {
	Video []entity.FormatOption
	Audio []entity.FormatOption
}

// NewCatalog builds both catalogs from meta, each led by BestOption.
// Backend ordering is kept as is.
func NewCatalog(meta *entity.VideoMetadata) Catalog {
	if meta == nil {
		return Catalog{Video: []entity.FormatOption{BestOption}, Audio: []entity.FormatOption{BestOption}}
	}

	return Catalog{
		Video: withBest(meta.VideoFormats),
		Audio: withBest(meta.AudioFormats),
	}
}

func withBest(formats []entity.FormatOption) []entity.FormatOption {
	out := make([]entity.FormatOption, 0, len(formats)+1)
	out = append(out, BestOption)

	return append(out, formats...)
}

// Options returns the catalog shown for t. Fixed conversions offer only BestOption.
func (c Catalog) Options(t entity.DownloadType) []entity.FormatOption {
	switch t {
	case entity.DownloadTypeVideo:
		return c.Video
	case entity.DownloadTypeAudio:
		return c.Audio
	default:
		return []entity.FormatOption{BestOption}
	}
}

// Contains reports whether formatID can be selected for t.
func (c Catalog) Contains(t entity.DownloadType, formatID string) bool {
	if formatID == consts.FormatBest {
		return true
	}

	return slices.ContainsFunc(c.Options(t), func(o entity.FormatOption) bool {
		return o.FormatID == formatID
	})
}

// Info is the rendered summary of an analysis.
type Info struct {
	Title    string
	Uploader string
	Duration string
}

// InfoFor renders meta for display.
func InfoFor(meta *entity.VideoMetadata) Info {
	return Info{
		Title:    meta.Title,
		Uploader: meta.Uploader,
		Duration: calc.Duration(meta.Duration),
	}
}
