package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestGenerateEmitsOneStubPerVector(t *testing.T) {
	var buf bytes.Buffer
	generate(&buf)
	out := buf.String()

	if got := strings.Count(out, "TEXT ·vector"); got != numVectors {
		t.Errorf("got %d vector stubs, want %d", got, numVectors)
	}
	if got := strings.Count(out, "DATA ·vectorStubs"); got != numVectors {
		t.Errorf("got %d vectorStubs entries, want %d", got, numVectors)
	}
}

func TestGenerateOmitsSyntheticErrorCodeForHardwarePushedVectors(t *testing.T) {
	var buf bytes.Buffer
	generate(&buf)
	out := buf.String()

	for v := 0; v < numVectors; v++ {
		block := stubBlock(out, v)
		wantsSynthetic := !errorCodeVectors[v]
		hasSynthetic := strings.Contains(block, "PUSHQ $0\n\tPUSHQ $")
		if wantsSynthetic != hasSynthetic {
			t.Errorf("vector %d: synthetic error code push = %v, want %v", v, hasSynthetic, wantsSynthetic)
		}
	}
}

// stubBlock extracts the text of vector v's TEXT block from generated
// output, from its TEXT line up to (not including) the blank line that
// terminates it.
func stubBlock(out string, v int) string {
	marker := fmt.Sprintf("TEXT ·vector%d(SB)", v)
	start := strings.Index(out, marker)
	if start < 0 {
		return ""
	}
	end := strings.Index(out[start:], "\n\n")
	if end < 0 {
		return out[start:]
	}
	return out[start : start+end]
}
