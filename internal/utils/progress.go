package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress represents a byte progress bar using mpb
type Progress struct {
	container   *mpb.Progress
	bar         *mpb.Bar
	enabled     bool
	description string
}

var descLength = 20

// NewProgress creates a progress bar over total bytes. It stays disabled
// unless enabled is set and stderr is a terminal.
func NewProgress(total int64, description string, enabled bool) *Progress {
	p := &Progress{
		enabled:     enabled && isTerminal(),
		description: description,
	}
	if !p.enabled {
		return p
	}

	fmt.Fprintln(os.Stderr)

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)

	p.bar = p.container.New(total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(statistics decor.Statistics) string {
				if len(p.description) > descLength {
					return p.description[:descLength-2] + ".."
				}
				return p.description
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.Name("  "),
			decor.Counters(decor.SizeB1024(0), "% .1f / % .1f", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	return p
}

// ProxyReader returns r with reads counted against the bar. A disabled bar
// returns r itself.
func (p *Progress) ProxyReader(r io.Reader) io.Reader {
	if !p.enabled || p.bar == nil {
		return r
	}
	return p.bar.ProxyReader(r)
}

// Abort stops the bar without completing it
func (p *Progress) Abort() {
	if !p.enabled || p.container == nil {
		return
	}
	p.bar.Abort(false)
	p.container.Wait()
	fmt.Fprintln(os.Stderr)
}

// Finish waits for the bar to complete and shuts down the container
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}
	p.container.Wait()
	fmt.Fprintln(os.Stderr)
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
