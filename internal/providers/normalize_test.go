package providers

import (
	"testing"
)

func TestCleanTrackName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name untouched", "Bohemian Rhapsody", "Bohemian Rhapsody"},
		{"parenthetical remaster", "Bohemian Rhapsody (2011 Remaster)", "Bohemian Rhapsody"},
		{"bracketed remaster", "Heroes [2017 Remastered Version]", "Heroes"},
		{"trailing remaster suffix", "Wish You Were Here - 2011 Remaster", "Wish You Were Here"},
		{"trailing remastered suffix", "Money - Remastered", "Money"},
		{"anniversary edition", "Nevermind (30th Anniversary Edition)", "Nevermind"},
		{"re-issue tag", "Raw Power (Re-issue)", "Raw Power"},
		{"interior whitespace collapsed", "Time  (2011 Remaster)  Flies", "Time Flies"},
		{"live parenthetical kept", "One (Live at Wembley)", "One (Live at Wembley)"},
		{"name that is only decoration falls back", "(2011 Remaster)", "(2011 Remaster)"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanTrackName(tt.input); got != tt.want {
				t.Errorf("cleanTrackName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
