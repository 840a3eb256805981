package progress

import (
	"strings"
	"testing"
)

func TestSpinnerString(t *testing.T) {
	spinner := NewSpinner("loading")
	defer spinner.Stop()

	str := spinner.String()
	if !strings.Contains(str, "loading") {
		t.Errorf("String() should contain 'loading', got %q", str)
	}

	hasSpinnerChar := false
	for _, part := range spinner.parts {
		if strings.Contains(str, part) {
			hasSpinnerChar = true
			break
		}
	}
	if !hasSpinnerChar {
		t.Errorf("String() should contain a spinner character, got %q", str)
	}

	spinner.SetMessage("loading cl100k_base")
	if !strings.Contains(spinner.String(), "cl100k_base") {
		t.Errorf("SetMessage not reflected in %q", spinner.String())
	}
}

func TestSpinnerStop(t *testing.T) {
	spinner := NewSpinner("done")
	spinner.Stop()
	spinner.Stop()

	for _, part := range spinner.parts {
		if strings.Contains(spinner.String(), part) {
			t.Errorf("stopped spinner should not animate, got %q", spinner.String())
		}
	}
}
