package kerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestFault_IsMatchesKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same kind", FileNotFound("/a"), ErrNotFound, true},
		{"same kind different code", PathNotFound("/a"), ErrNotFound, true},
		{"different kind", AlreadyExists("/a"), ErrNotFound, false},
		{"wrapped", fmt.Errorf("service: %w", NotEmpty("/x")), ErrNotEmpty, true},
		{"code mismatch", PathNotFound("/a"), &Fault{Kind: KindNotFound, Code: CodeFileNotFound}, false},
		{"plain error", errors.New("boom"), ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.want)
			}
		})
	}
}

func TestFault_Error(t *testing.T) {
	f := AccessDenied("Denied write on /home/test.txt for guest (guest)")
	want := "[0xSAD0ERR] SELINUX: SELinux access denied: Denied write on /home/test.txt for guest (guest)"
	if got := f.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("op: %w", Timeout("begin", errors.New("deadline")))); got != KindTimeout {
		t.Errorf("KindOf() = %v, want %v", got, KindTimeout)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindUnknown)
	}
}

func TestMessage_Unknown(t *testing.T) {
	if got := Message("0xNOPE"); got != "Unknown error" {
		t.Errorf("Message() = %q", got)
	}
}
