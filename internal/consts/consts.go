// Package consts defines application-wide constants.
package consts

import "time"

const (
	// FormatBest is the sentinel format letting the backend pick the highest-quality match.
	FormatBest = "best"
	// FormatBestLabel is the display text of the synthetic FormatBest option.
	FormatBestLabel = "Best Quality"
	// DefaultFilename is used when a completed job reports no filename.
	DefaultFilename = "download"
	// DefaultPollInterval is the progress polling cadence.
	DefaultPollInterval = 1 * time.Second
	// DefaultNotificationTTL is how long a notification stays visible.
	DefaultNotificationTTL = 5 * time.Second
)

// User-facing messages.
const (
	MsgEnterURL          = "Please enter a URL"
	MsgInvalidURL        = "Please enter a valid URL"
	MsgAnalyzeFailed     = "Failed to analyze video"
	MsgAnalyzed          = "Video analyzed successfully!"
	MsgStartFailed       = "Failed to start download"
	MsgStarted           = "Download started!"
	MsgCompleted         = "Download completed!"
	MsgSaved             = "Download saved to your machine!"
	MsgDownloadFailed    = "Download failed"
	MsgUnknownError      = "Unknown error"
	MsgListFailed        = "Failed to load downloads"
	MsgNoDownloads       = "No completed downloads"
	MsgFetchFailed       = "Failed to fetch downloaded file"
	MsgProgressLost      = "Lost track of the download progress"
	MsgUnknownFormat     = "Selected format is not in the current format list"
	MsgUnknownType       = "Unknown download type"
	MsgDownloadInFlight  = "A download is already being tracked; it will be replaced"
	MsgAnalyzeInProgress = "Analysis already in progress"
)

// Status server response messages.
const (
	// RespSessionRetrieved is returned with the panel snapshot.
	RespSessionRetrieved = "session retrieved"
	// RespOK is the readiness probe answer.
	RespOK = "ok"
)
