package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "generating", 5*time.Millisecond, true)
	s.Start()
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.UpdateMessage("archiving")
	time.Sleep(30 * time.Millisecond)
	s.Success("generated")
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "generating") || !strings.Contains(out, "archiving") {
		t.Errorf("expected both messages in output %q", out)
	}
	if !strings.HasSuffix(out, "✓ generated\n") {
		t.Errorf("expected success line, got %q", out)
	}
}

func TestWithSpinner(t *testing.T) {
	var buf bytes.Buffer
	if err := WithSpinner(&buf, "importing", true, func() (string, error) { return "imported", nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "✓ imported") {
		t.Errorf("expected success, got %q", buf.String())
	}

	buf.Reset()
	failure := errors.New("bad zip")
	if err := WithSpinner(&buf, "importing", true, func() (string, error) { return "", failure }); err != failure {
		t.Fatalf("expected failure to be returned, got %v", err)
	}
	if !strings.Contains(buf.String(), "❌ importing failed") {
		t.Errorf("expected error line, got %q", buf.String())
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 4, "bundles", true)
	bar.Add(1)
	if !strings.Contains(buf.String(), " 25% (1/4) bundles") {
		t.Errorf("unexpected progress %q", buf.String())
	}
	bar.Add(10)
	if !strings.Contains(buf.String(), "100% (4/4)") {
		t.Errorf("expected progress capped at total, got %q", buf.String())
	}
	bar.Finish("4 bundles generated")
	if !strings.HasSuffix(buf.String(), "✓ 4 bundles generated\n") {
		t.Errorf("unexpected finish %q", buf.String())
	}
}
