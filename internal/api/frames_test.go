package api

import (
	"errors"
	"strconv"
	"testing"
)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestLookupFrameBadRequest(t *testing.T) {
	_, err := lookupFrame("galactic", "EME2000")
	var pe *paramError
	if !errors.As(err, &pe) {
		t.Fatalf("lookupFrame error = %v, want a paramError", err)
	}

	f, err := lookupFrame("", "EME2000")
	if err != nil || f.Name != "j2000" {
		t.Errorf("lookupFrame(\"\", EME2000) = %q, %v; want j2000", f.Name, err)
	}
}
