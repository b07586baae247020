package launchfile

import "testing"

func TestStepMatches(t *testing.T) {
	tests := []struct {
		name     string
		step     Step
		platform string
		want     bool
	}{
		{"no platform", Step{}, "linux/amd64", true},
		{"same platform", Step{Platform: "linux/arm64"}, "linux/arm64", true},
		{"other platform", Step{Platform: "linux/arm64"}, "linux/amd64", false},
		{"unparseable", Step{Platform: "???"}, "linux/amd64", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.Matches(tt.platform); got != tt.want {
				t.Fatalf("Matches(%q) = %v, want %v", tt.platform, got, tt.want)
			}
		})
	}
}
