package service

import "ytpanel/internal/entity"

// Section is one of the mutually exclusive option panes.
type Section string

// Sections, one per download type.
const (
	SectionVideoFormats Section = "video-formats"
	SectionAudioFormats Section = "audio-formats"
	SectionMP3          Section = "mp3-info"
	SectionFLAC         Section = "flac-info"
	SectionM4A          Section = "m4a-info"
)

// Sections lists every section in display order.
var Sections = []Section{SectionVideoFormats, SectionAudioFormats, SectionMP3, SectionFLAC, SectionM4A}

var sectionByType = map[entity.DownloadType]Section{
	entity.DownloadTypeVideo: SectionVideoFormats,
	entity.DownloadTypeAudio: SectionAudioFormats,
	entity.DownloadTypeMP3:   SectionMP3,
	entity.DownloadTypeFLAC:  SectionFLAC,
	entity.DownloadTypeM4A:   SectionM4A,
}

// SectionFor returns the section shown for t. Unknown types show the video formats.
func SectionFor(t entity.DownloadType) Section {
	if s, ok := sectionByType[t]; ok {
		return s
	}

	return SectionVideoFormats
}

// Visibility maps every section to whether it is shown for t. Exactly one is true.
func Visibility(t entity.DownloadType) map[Section]bool {
	active := SectionFor(t)
	out := make(map[Section]bool, len(Sections))

	for _, s := range Sections {
		out[s] = s == active
	}

	return out
}
