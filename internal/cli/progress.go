package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/yeonjae-dev/bizradar/internal/model"
)

// ProgressRenderer turns a run's progress frames into a terminal
// progress bar. The bar tracks the overall percent; the description
// follows the current phase and item.
type ProgressRenderer struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	stage  string
}

// NewProgressRenderer creates a renderer writing to w.
func NewProgressRenderer(w io.Writer) *ProgressRenderer {
	return &ProgressRenderer{writer: w}
}

// Update consumes one progress frame.
func (r *ProgressRenderer) Update(p model.Progress) {
	if r.bar == nil {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(r.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				if _, err := fmt.Fprintln(r.writer); err != nil {
					slog.Warn("Failed to write newline after progress bar", "error", err)
				}
			}),
		)
	}

	if p.Stage != r.stage {
		r.stage = p.Stage
		r.bar.Describe(fmt.Sprintf("[cyan][bold]%s[reset] (%d/%d)", p.Stage, p.Current, p.Total))
	} else if p.Total > 0 {
		r.bar.Describe(fmt.Sprintf("[cyan][bold]%s[reset] (%d/%d) %s", p.Stage, p.Current, p.Total, truncate(p.ItemLabel, 28)))
	}

	if err := r.bar.Set(p.Percent); err != nil {
		slog.Debug("Failed to update progress bar", "error", err)
	}
}

// Finish completes the bar.
func (r *ProgressRenderer) Finish() {
	if r.bar == nil {
		return
	}
	if err := r.bar.Finish(); err != nil {
		slog.Debug("Failed to finish progress bar", "error", err)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
