// Package entity defines the core entities used in the application.
package entity

import (
	"fmt"
	"log/slog"
	"strings"

	"ytpanel/pkg/calc"
)

// DownloadType is the kind of output requested from the backend.
type DownloadType string

const (
	// DownloadTypeVideo downloads a video format picked from the video catalog.
	DownloadTypeVideo DownloadType = "video"
	// DownloadTypeAudio downloads an audio-only format picked from the audio catalog.
	DownloadTypeAudio DownloadType = "audio"
	// DownloadTypeMP3 extracts audio and converts it to mp3.
	DownloadTypeMP3 DownloadType = "mp3"
	// DownloadTypeFLAC extracts audio and converts it to lossless flac.
	DownloadTypeFLAC DownloadType = "flac"
	// DownloadTypeM4A extracts audio and converts it to m4a.
	DownloadTypeM4A DownloadType = "m4a"
)

// DownloadTypes lists every type in display order.
var DownloadTypes = []DownloadType{
	DownloadTypeVideo,
	DownloadTypeAudio,
	DownloadTypeMP3,
	DownloadTypeFLAC,
	DownloadTypeM4A,
}

// ParseDownloadType parses s case-insensitively.
func ParseDownloadType(s string) (DownloadType, error) {
	t := DownloadType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DownloadTypes {
		if t == known {
			return t, nil
		}
	}

	return "", fmt.Errorf("unknown download type %q", s)
}

// UsesFormatCatalog reports whether the format is picked from a catalog (video, audio)
// rather than fixed by a conversion (mp3, flac, m4a).
func (t DownloadType) UsesFormatCatalog() bool {
	return t == DownloadTypeVideo || t == DownloadTypeAudio
}

// FormatOption is one selectable format.
type FormatOption struct {
	FormatID    string `json:"format_id"`
	Description string `json:"description"`
}

// VideoMetadata is the analysis result for a URL.
type VideoMetadata struct {
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	// Duration in seconds, nil when unknown.
	Duration     *float64       `json:"duration,omitempty"`
	VideoFormats []FormatOption `json:"video_formats"`
	AudioFormats []FormatOption `json:"audio_formats"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (m VideoMetadata) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("title", m.Title),
		slog.String("uploader", m.Uploader),
		slog.String("duration", calc.Duration(m.Duration)),
		slog.Int("video_formats", len(m.VideoFormats)),
		slog.Int("audio_formats", len(m.AudioFormats)),
	)
}

// DownloadRequest is the body of a start-download call.
type DownloadRequest struct {
	URL    string       `json:"url"`
	Format string       `json:"format"`
	Type   DownloadType `json:"type"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r DownloadRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", r.URL),
		slog.String("format", r.Format),
		slog.String("type", string(r.Type)),
	)
}

// JobStatus represents the status of a backend download job.
type JobStatus string

const (
	// JobStatusDownloading indicates that the job is in progress.
	JobStatusDownloading JobStatus = "downloading"
	// JobStatusCompleted indicates that the file is ready to be fetched.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusError indicates that the job has failed.
	JobStatusError JobStatus = "error"
	// JobStatusNotFound is reported for ids the backend does not know (yet).
	JobStatusNotFound JobStatus = "not_found"
)

// IsTerminal reports whether no further transitions follow s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// DownloadJob is a progress snapshot of a backend job.
type DownloadJob struct {
	DownloadID string    `json:"download_id,omitempty"`
	Status     JobStatus `json:"status"`
	// Progress is 0..100, meaningful only while downloading.
	Progress float64 `json:"progress,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j DownloadJob) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("download_id", j.DownloadID),
		slog.String("status", string(j.Status)),
		slog.Float64("progress", j.Progress),
		slog.String("filename", j.Filename),
		slog.String("error", j.Error),
	)
}

// CompletedDownload is one entry of the completed downloads list.
type CompletedDownload struct {
	DownloadID string `json:"download_id"`
	Filename   string `json:"filename"`
	Ready      bool   `json:"ready,omitempty"`
}
