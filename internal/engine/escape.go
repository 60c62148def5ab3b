package engine

import "strings"

// EscapePrompt renders prompt as a POSIX $'...' literal so an arbitrary
// byte sequence cannot break out of the shell argument: every single quote
// is replaced with '\''. Backslashes before the first quote are doubled,
// since $'...' treats them as escapes; after the first '\'' the rest sits in
// a plain '...' string where backslashes are literal. Security-sensitive —
// keep this the single place prompts are quoted.
func EscapePrompt(prompt string) string {
	head, rest, found := strings.Cut(prompt, "'")
	head = strings.ReplaceAll(head, `\`, `\\`)
	if !found {
		return head
	}
	return head + `'\''` + strings.ReplaceAll(rest, "'", `'\''`)
}
