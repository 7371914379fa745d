package normalize

import (
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"case and padding", "  Joshua  ", "joshua"},
		{"punctuation", "O'Brien-Smith", "o brien smith"},
		{"inner whitespace", "mary\t ann", "mary ann"},
		{"only punctuation", "--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"02 9876 5432", "0298765432"},
		{"(03) 9123-4567", "0391234567"},
		{"+61 412 345 678", "61412345678"},
		{"", ""},
		{"n/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Phone(tt.input); got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHasDigit(t *testing.T) {
	if !HasDigit("2000") || !HasDigit("sydney 2") {
		t.Error("expected digits to be detected")
	}
	if HasDigit("sydney") || HasDigit("") {
		t.Error("expected no digits")
	}
}

func TestStripLetters(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2o00", "200"},
		{"20O0", "200"},
		{"2000", "2000"},
		{"sydney", ""},
	}

	for _, tt := range tests {
		if got := StripLetters(tt.input); got != tt.want {
			t.Errorf("StripLetters(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Paine St", "paine street"},
		{"paine street", "paine street"},
		{"Cnr. Smith Rd", "cnr smith road"},
		{"Unit 4, Rosebank Cres", "unit 4 rosebank crescent"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Address(tt.input); got != tt.want {
				t.Errorf("Address(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
