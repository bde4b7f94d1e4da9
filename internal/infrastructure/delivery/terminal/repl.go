package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ytpanel/internal/entity"
	"ytpanel/internal/service"
)

// Panel is the part of service.Panel driven by commands.
type Panel interface {
	Analyze(ctx context.Context, rawURL string) (*entity.VideoMetadata, error)
	SelectType(raw string) (entity.DownloadType, error)
	SelectFormat(formatID string) error
	Formats() ([]entity.FormatOption, string)
	StartDownload(ctx context.Context) (string, error)
	ListDownloads(ctx context.Context) ([]entity.CompletedDownload, error)
	Snapshot() service.Snapshot
}

var _ Panel = (*service.Panel)(nil)

const helpText = `Commands:
  analyze <url>   fetch video information (a bare URL works too)
  type <t>        video | audio | mp3 | flac | m4a
  formats         list formats of the current type
  format <id>     select a format from the list
  download        start downloading the selection
  refresh         reload completed downloads
  status          redraw the panel
  help            show this help
  quit            exit`

// REPL reads commands line by line and dispatches them to the panel.
type REPL struct {
	log   *slog.Logger
	panel Panel
	view  *View
	in    io.Reader
	out   io.Writer
}

// NewREPL creates a command loop reading in and echoing to out.
func NewREPL(log *slog.Logger, panel Panel, view *View, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		log:   log.With(slog.String("package", "terminal")),
		panel: panel,
		view:  view,
		in:    in,
		out:   out,
	}
}

// Run processes commands until EOF, quit or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- sc.Err()
	}()

	r.prompt()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}

				return nil
			}

			if quit := r.Execute(ctx, line); quit {
				return nil
			}

			r.prompt()
		}
	}
}

func (r *REPL) prompt() {
	fmt.Fprint(r.out, "> ")
}

// Execute runs one command line and reports whether the loop should end.
// Panel errors are already rendered by the view and only logged here.
func (r *REPL) Execute(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	var err error

	switch strings.ToLower(cmd) {
	case "":
		return false
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(r.out, helpText)
	case "analyze", "a":
		_, err = r.panel.Analyze(ctx, arg)
	case "type", "t":
		_, err = r.panel.SelectType(arg)
	case "format", "f":
		err = r.panel.SelectFormat(arg)
	case "formats":
		opts, selected := r.panel.Formats()
		fmt.Fprintln(r.out, renderFormats(r.view.th, opts))
		fmt.Fprintf(r.out, "selected: %s\n", selected)
	case "download", "d":
		_, err = r.panel.StartDownload(ctx)
	case "refresh", "r":
		_, err = r.panel.ListDownloads(ctx)
	case "status", "s":
		fmt.Fprintln(r.out, r.view.Render())
	default:
		if looksLikeURL(cmd) {
			_, err = r.panel.Analyze(ctx, strings.TrimSpace(line))

			break
		}

		fmt.Fprintf(r.out, "unknown command %q, type help\n", cmd)
	}

	if err != nil {
		r.log.DebugContext(ctx, "command failed", slog.String("command", cmd), slog.Any("error", err))
	}

	return false
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://")
}
