// Package console renders the bridge's callback stream as styled terminal lines.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
)

var (
	accent  = lipgloss.Color("#89B4FA")
	good    = lipgloss.Color("#A6E3A1")
	warning = lipgloss.Color("#F9E2AF")
	bad     = lipgloss.Color("#F38BA8")
	muted   = lipgloss.Color("#6C7086")
)

type styles struct {
	stamp   lipgloss.Style
	label   lipgloss.Style
	info    lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	dim     lipgloss.Style
	value   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		stamp:   r.NewStyle().Foreground(muted),
		label:   r.NewStyle().Bold(true).Foreground(accent).Width(8),
		info:    r.NewStyle().Foreground(good),
		warning: r.NewStyle().Foreground(warning).Bold(true),
		err:     r.NewStyle().Foreground(bad).Bold(true),
		dim:     r.NewStyle().Foreground(muted),
		value:   r.NewStyle().Foreground(good),
	}
}

// Presenter writes one line per callback. Repeated TIME samples with identical
// content are not printed again.
type Presenter struct {
	mu       sync.Mutex
	out      io.Writer
	styles   styles
	now      func() time.Time
	lastTime proto.TimeSample
}

func New(w io.Writer) *Presenter {
	return &Presenter{
		out:    w,
		styles: newStyles(lipgloss.NewRenderer(w)),
		now:    time.Now,
	}
}

func (p *Presenter) line(label string, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked(label, body)
}

func (p *Presenter) writeLocked(label string, body string) {
	stamp := p.styles.stamp.Render(p.now().Format("15:04:05.000"))
	prefix := stamp + " " + p.styles.label.Render(label) + " "
	pad := strings.Repeat(" ", lipgloss.Width(prefix))
	body = strings.ReplaceAll(body, "\n", "\n"+pad)
	fmt.Fprintln(p.out, prefix+body)
}

func (p *Presenter) OnTime(sample proto.TimeSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sample == p.lastTime {
		return
	}
	p.lastTime = sample
	p.writeLocked("TIME", fmt.Sprintf("sim %s  mission %s  epoch %s  zulu %s",
		sample.SimulationTime, sample.MissionTime, sample.EpochTime, sample.ZuluTime))
}

func (p *Presenter) OnStatus(running bool) {
	state := p.styles.warning.Render("HELD")
	if running {
		state = p.styles.info.Render("RUNNING")
	}
	p.line("STATUS", "scheduler "+state)
}

func (p *Presenter) OnEvent(level, message string) {
	var tag string
	switch strings.ToUpper(level) {
	case "WARNING", "WARN":
		tag = p.styles.warning.Render(level)
	case "ERROR", "CRITICAL", "FATAL":
		tag = p.styles.err.Render(level)
	default:
		tag = p.styles.info.Render(level)
	}
	p.line("EVENT", tag+" "+message)
}

func (p *Presenter) OnFieldsBatchApplied(events []data.WatchEvent) {
	for _, ev := range events {
		switch ev.Kind {
		case data.WatchAdded:
			p.line("WATCH", "+ "+ev.Path)
		case data.WatchRemoved:
			p.line("WATCH", "- "+ev.Path)
		case data.WatchCleared:
			p.line("WATCH", p.styles.dim.Render("watch list cleared"))
		case data.WatchUpdated:
			v := ev.Variable
			p.line("FIELD", fmt.Sprintf("%s = %s %s", v.Path, p.styles.value.Render(v.Value), p.styles.dim.Render("("+v.Type+")")))
		}
	}
}

func (p *Presenter) OnTreeReplaced(items []data.FlatTreeItem) {
	roots := 0
	for _, it := range items {
		if it.Level == 0 {
			roots++
		}
	}
	p.line("TREE", fmt.Sprintf("model tree replaced: %d items, %d roots", len(items), roots))
}

func (p *Presenter) OnCommandResult(name proto.CommandName, ok bool) {
	outcome := p.styles.info.Render("ok")
	if !ok {
		outcome = p.styles.err.Render("failed")
	}
	p.line("COMMAND", fmt.Sprintf("%s %s", name, outcome))
}
