package testutil

import (
	"log"
	"testing"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// TestLogger returns a logger whose output is captured by the test, so log
// lines only surface for failing tests.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t: t}, "[gametrade] ", log.LstdFlags)
}
