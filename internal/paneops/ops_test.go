package paneops

import "testing"

func TestInteractiveShells(t *testing.T) {
	cases := map[string]bool{
		"bash":   true,
		"zsh":    true,
		"fish":   true,
		"sh":     true,
		"dash":   true,
		"claude": false,
		"vim":    false,
		"node":   false,
	}
	for cmd, want := range cases {
		if got := interactiveShells[cmd]; got != want {
			t.Errorf("interactiveShells[%q] = %v, want %v", cmd, got, want)
		}
	}
}
