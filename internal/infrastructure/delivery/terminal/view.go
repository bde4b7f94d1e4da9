// Package terminal renders the panel on a text terminal and drives it from
// line commands.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/service"
)

const progressWidth = 30

type theme struct {
	border   lipgloss.Style
	title    lipgloss.Style
	label    lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	info     lipgloss.Style
	bar      lipgloss.Style
	active   lipgloss.Style
	inactive lipgloss.Style
	link     lipgloss.Style
}

func newTheme(r *lipgloss.Renderer, color bool) theme {
	if !color {
		plain := r.NewStyle()

		return theme{
			border:   plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
			title:    plain,
			label:    plain,
			success:  plain,
			failure:  plain,
			info:     plain,
			bar:      plain,
			active:   plain,
			inactive: plain,
			link:     plain,
		}
	}

	return theme{
		border:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("63")),
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		label:    r.NewStyle().Faint(true),
		success:  r.NewStyle().Foreground(lipgloss.Color("42")),
		failure:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		info:     r.NewStyle().Foreground(lipgloss.Color("213")),
		bar:      r.NewStyle().Foreground(lipgloss.Color("219")),
		active:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("219")),
		inactive: r.NewStyle().Foreground(lipgloss.Color("240")),
		link:     r.NewStyle().Underline(true),
	}
}

type note struct {
	level   service.Level
	msg     string
	expires time.Time
}

// View is a service.View printing to a terminal. It keeps the last rendered
// state so the whole panel can be redrawn on demand.
type View struct {
	mu  sync.Mutex
	out io.Writer
	th  theme
	ttl time.Duration
	now func() time.Time

	notes        []note
	analyzing    bool
	info         *service.Info
	video, audio []entity.FormatOption
	section      service.Section
	startEnabled bool
	progress     int
	progressOn   bool
	status       string
	links        []service.DownloadLink
	placeholder  string
}

var _ service.View = (*View)(nil)

// NewView creates a View writing to out. Notifications stay listed for ttl.
func NewView(out io.Writer, color bool, ttl time.Duration) *View {
	if ttl <= 0 {
		ttl = consts.DefaultNotificationTTL
	}

	return &View{
		out:     out,
		th:      newTheme(lipgloss.NewRenderer(out), color),
		ttl:     ttl,
		now:     time.Now,
		section: service.SectionVideoFormats,
	}
}

func (v *View) println(s string) {
	fmt.Fprintln(v.out, s)
}

func (v *View) levelStyle(level service.Level) lipgloss.Style {
	switch level {
	case service.LevelSuccess:
		return v.th.success
	case service.LevelError:
		return v.th.failure
	default:
		return v.th.info
	}
}

// Notify prints msg and keeps it listed until its ttl passes.
func (v *View) Notify(level service.Level, msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.notes = append(v.notes, note{level: level, msg: msg, expires: v.now().Add(v.ttl)})
	v.println(v.levelStyle(level).Render(fmt.Sprintf("[%s] %s", level, msg)))
}

// Notifications returns the messages whose ttl has not passed.
func (v *View) Notifications() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.activeNotesLocked()
}

func (v *View) activeNotesLocked() []string {
	now := v.now()
	kept := v.notes[:0]
	out := make([]string, 0, len(v.notes))

	for _, n := range v.notes {
		if now.Before(n.expires) {
			kept = append(kept, n)
			out = append(out, n.msg)
		}
	}

	v.notes = kept

	return out
}

// SetAnalyzing shows or clears the loading indicator.
func (v *View) SetAnalyzing(busy bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.analyzing = busy
	if busy {
		v.println(v.th.label.Render("Analyzing..."))
	}
}

// ShowInfo prints the analysis summary.
func (v *View) ShowInfo(info service.Info) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.info = &info
	v.println(v.renderInfoLocked())
}

// HideInfo forgets the analysis summary.
func (v *View) HideInfo() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.info = nil
	v.video, v.audio = nil, nil
}

// ShowFormats prints the format catalog of the active section.
func (v *View) ShowFormats(video, audio []entity.FormatOption) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.video, v.audio = video, audio
	v.println(v.renderSectionLocked())
}

// ShowSection switches the visible section.
func (v *View) ShowSection(active service.Section, visible map[service.Section]bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.section = active

	tabs := make([]string, 0, len(service.Sections))
	for _, s := range service.Sections {
		if visible[s] {
			tabs = append(tabs, v.th.active.Render("["+string(s)+"]"))
		} else {
			tabs = append(tabs, v.th.inactive.Render(string(s)))
		}
	}

	v.println(strings.Join(tabs, " "))
}

// SetStartEnabled records whether download may be issued.
func (v *View) SetStartEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.startEnabled = enabled
}

// ShowProgress prints a progress bar.
func (v *View) ShowProgress(percent int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.progress, v.progressOn = percent, true
	v.println(v.renderProgressLocked())
}

// HideProgress hides the progress bar.
func (v *View) HideProgress() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.progressOn = false
}

// SetStatus prints msg as the status line. An empty msg clears it.
func (v *View) SetStatus(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.status = msg
	if msg != "" {
		v.println(msg)
	}
}

// ShowDownloads prints the completed list.
func (v *View) ShowDownloads(links []service.DownloadLink) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.links, v.placeholder = links, ""
	v.println(v.renderDownloadsLocked())
}

// ShowEmptyDownloads prints the placeholder of an empty list.
func (v *View) ShowEmptyDownloads(placeholder string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.links, v.placeholder = nil, placeholder
	v.println(v.renderDownloadsLocked())
}

// Render draws the whole panel.
func (v *View) Render() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	parts := []string{v.th.title.Render("ytpanel")}

	if v.analyzing {
		parts = append(parts, v.th.label.Render("Analyzing..."))
	}

	if v.info != nil {
		parts = append(parts, v.renderInfoLocked(), v.renderSectionLocked())
	}

	if v.progressOn {
		parts = append(parts, v.renderProgressLocked())
	}

	if v.status != "" {
		parts = append(parts, v.status)
	}

	start := "download: ready"
	if !v.startEnabled {
		start = "download: busy"
	}

	parts = append(parts, v.th.label.Render(start))

	if notes := v.activeNotesLocked(); len(notes) > 0 {
		parts = append(parts, v.th.label.Render("notifications:")+"\n  "+strings.Join(notes, "\n  "))
	}

	if v.placeholder != "" || len(v.links) > 0 {
		parts = append(parts, v.renderDownloadsLocked())
	}

	return v.th.border.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (v *View) renderInfoLocked() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		v.th.title.Render(v.info.Title),
		v.th.label.Render("Uploader: ")+v.info.Uploader,
		v.th.label.Render("Duration: ")+v.info.Duration,
	)
}

func (v *View) renderSectionLocked() string {
	var opts []entity.FormatOption

	switch v.section {
	case service.SectionVideoFormats:
		opts = v.video
	case service.SectionAudioFormats:
		opts = v.audio
	case service.SectionMP3:
		return v.th.label.Render("MP3: best audio converted to mp3")
	case service.SectionFLAC:
		return v.th.label.Render("FLAC: best audio converted to lossless flac")
	case service.SectionM4A:
		return v.th.label.Render("M4A: best audio converted to m4a")
	}

	return renderFormats(v.th, opts)
}

func renderFormats(th theme, opts []entity.FormatOption) string {
	var b strings.Builder

	b.WriteString(th.label.Render("Formats:"))

	for _, o := range opts {
		fmt.Fprintf(&b, "\n  %-8s %s", o.FormatID, o.Description)
	}

	return b.String()
}

func (v *View) renderProgressLocked() string {
	filled := max(0, min(100, v.progress)) * progressWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressWidth-filled)

	return v.th.bar.Render("["+bar+"]") + fmt.Sprintf(" %d%%", v.progress)
}

func (v *View) renderDownloadsLocked() string {
	if len(v.links) == 0 {
		return v.th.label.Render(v.placeholder)
	}

	var b strings.Builder

	b.WriteString(v.th.title.Render("Completed downloads"))

	for _, l := range v.links {
		fmt.Fprintf(&b, "\n  %s  %s", l.Filename, v.th.link.Render(l.URL))
	}

	return b.String()
}
