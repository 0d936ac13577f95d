// Package ui renders messages for the notifyd terminal commands.
package ui

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/alfredjeanlab/notify/internal/model"
)

// ANSI256 color codes.
const (
	colorLike    = 204 // pink
	colorComment = 74  // blue
	colorSystem  = 214 // amber
	colorMuted   = 245 // medium gray
)

var noColor bool

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	// https://no-color.org: any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// SetColor enables or disables color output globally.
func SetColor(enabled bool) {
	noColor = !enabled
}

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderKind returns the kind's name in its color.
func RenderKind(k model.Kind) string {
	switch k {
	case model.KindLike:
		return render(colorLike, k.String())
	case model.KindComment:
		return render(colorComment, k.String())
	case model.KindSystem:
		return render(colorSystem, k.String())
	default:
		return k.String()
	}
}

// FormatMessage renders one message as a single line:
//
//	#12 LIKE     alice  "liked your note"  2026-01-02 15:04
func FormatMessage(v model.MessageView) string {
	from := "system"
	if v.Sender != nil {
		from = v.Sender.Username
		if from == "" {
			from = fmt.Sprintf("user %d", v.Sender.UserID)
		}
	}
	marker := "*"
	if v.IsRead {
		marker = " "
	}
	kind := RenderKind(v.Type)
	// Pad on the plain name so colored and plain output align the same.
	if pad := 8 - len(v.Type.String()); pad > 0 {
		kind += strings.Repeat(" ", pad)
	}
	return fmt.Sprintf("%s#%d %s %s  %q  %s",
		marker,
		v.MessageID,
		kind,
		from,
		v.Content,
		RenderMuted(v.CreatedAt.Local().Format("2006-01-02 15:04")),
	)
}

// FormatCounts renders per-kind unread counts in kind order, e.g.
// "LIKE 2  COMMENT 1  (3 unread)".
func FormatCounts(counts map[string]int) string {
	var parts []string
	total := 0
	for _, k := range []model.Kind{model.KindLike, model.KindComment, model.KindSystem} {
		if n := counts[k.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", RenderKind(k), n))
			total += n
		}
	}
	summary := fmt.Sprintf("(%d unread)", total)
	if len(parts) == 0 {
		return summary
	}
	return strings.Join(parts, "  ") + "  " + RenderMuted(summary)
}
