package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category string
		code     string
	}{
		{"fault", kerrors.NotEmpty("/x"), kerrors.CategoryFS, kerrors.CodeDirNotEmpty},
		{"wrapped fault", fmt.Errorf("op: %w", kerrors.AccessDenied("/etc")), kerrors.CategorySELinux, kerrors.CodeAccessDenied},
		{"plain", errors.New("connection reset"), kerrors.CategoryStore, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := FromError(tt.err)
			if ev.Category != tt.category || ev.Code != tt.code {
				t.Errorf("FromError() = %+v, want category %s code %q", ev, tt.category, tt.code)
			}
			if ev.Message == "" {
				t.Error("event message is empty")
			}
		})
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Report(context.Background(), Event{Code: "a"})
	r.Report(context.Background(), Event{Code: "b"})

	events := r.Events()
	if len(events) != 2 || events[0].Code != "a" || events[1].Code != "b" {
		t.Errorf("Events() = %+v", events)
	}
}
