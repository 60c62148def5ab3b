package monitor

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/cwt-dev/cwtd/internal/types"
)

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

const (
	questionTailLines  = 20
	indicatorTailLines = 5
)

var cursorGlyphs = " \t>~`|›»❯▸▶"

var interactiveIndicators = []string{
	"enter to select",
	"to navigate",
	"esc to cancel",
}

// parseNumberedOptions extracts a numbered-choice prompt from the tail of a
// pane capture. It collects a single contiguous run of numbered-option
// lines, scanning backward from the end of the tail and stopping at the
// first line that breaks the run, so a stale already-answered option block
// earlier in the tail is never merged with a genuinely new one. Returns
// nil if no options are found, or if options are found but the capture's
// last few lines lack an interactive-prompt indicator (a heuristic to
// avoid matching ordinary numbered lists).
func parseNumberedOptions(text string) []types.QuestionOption {
	lines := strings.Split(text, "\n")
	tail := lines
	if len(tail) > questionTailLines {
		tail = tail[len(tail)-questionTailLines:]
	}

	var options []types.QuestionOption
	collecting := false
	for i := len(tail) - 1; i >= 0; i-- {
		trimmed := strings.TrimLeft(ansiEscape.ReplaceAllString(tail[i], ""), cursorGlyphs)
		number, label, ok := splitNumberedOption(trimmed)
		if ok && label != "" {
			options = append([]types.QuestionOption{{Number: number, Label: label}}, options...)
			collecting = true
			continue
		}
		if collecting {
			break
		}
	}

	if len(options) == 0 {
		return nil
	}
	if !hasInteractivePromptIndicator(text) {
		return nil
	}
	return options
}

// splitNumberedOption matches a line of the form "<digits>. <label>".
func splitNumberedOption(line string) (number, label string, ok bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", "", false
	}
	rest := line[i:]
	if !strings.HasPrefix(rest, ". ") {
		return "", "", false
	}
	return line[:i], strings.TrimSpace(rest[2:]), true
}

func hasInteractivePromptIndicator(text string) bool {
	lines := strings.Split(text, "\n")
	start := len(lines) - indicatorTailLines
	if start < 0 {
		start = 0
	}
	tail := strings.ToLower(strings.Join(lines[start:], "\n"))
	for _, ind := range interactiveIndicators {
		if strings.Contains(tail, ind) {
			return true
		}
	}
	return false
}

// makeQuestionID hashes pane+ordered options into a stable id, prefixed by
// the pane handle so ids are unique across panes.
func makeQuestionID(pane types.PaneHandle, options []types.QuestionOption) string {
	h := sha256.New()
	for _, opt := range options {
		h.Write([]byte(opt.Number))
		h.Write([]byte("|"))
		h.Write([]byte(opt.Label))
	}
	return fmt.Sprintf("%s:%x", pane, h.Sum(nil)[:8])
}
