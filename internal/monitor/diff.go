package monitor

import "strings"

// diffContent returns the suffix of current following previous's last
// non-empty line (the anchor), searched from the end of current. If that
// single anchor doesn't appear in current at all, the diff is empty: the
// buffer scrolled past the overlap, and re-sending would double-send
// content already emitted. There is no fallback to an earlier anchor line
// — a stale line reappearing later in current must not resurrect output
// already sent in an earlier tick.
func diffContent(previous, current string) string {
	if previous == "" {
		return current
	}

	prevLines := strings.Split(previous, "\n")
	currLines := strings.Split(current, "\n")

	anchor := ""
	for i := len(prevLines) - 1; i >= 0; i-- {
		if prevLines[i] != "" {
			anchor = prevLines[i]
			break
		}
	}
	if anchor == "" {
		return ""
	}

	pos := lastIndexOf(currLines, anchor)
	if pos < 0 {
		return ""
	}
	if pos+1 < len(currLines) {
		return strings.Join(currLines[pos+1:], "\n")
	}
	return ""
}

func lastIndexOf(lines []string, target string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] == target {
			return i
		}
	}
	return -1
}

// isSubstantial reports whether diff contains at least one line with five
// or more non-whitespace characters. Filters animated spinners.
func isSubstantial(diff string) bool {
	for _, line := range strings.Split(diff, "\n") {
		count := 0
		for _, r := range line {
			if r != ' ' && r != '\t' {
				count++
				if count >= 5 {
					return true
				}
			}
		}
	}
	return false
}
