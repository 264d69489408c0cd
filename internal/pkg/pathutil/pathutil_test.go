package pathutil

import (
	"errors"
	"testing"

	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/", want: "/"},
		{in: "/home/", want: "/home"},
		{in: "//home//alice/../bob", want: "/home/bob"},
		{in: "", wantErr: true},
		{in: "home/alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Clean(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Clean(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, kerrors.ErrInvalidArgument) {
					t.Errorf("Clean(%q) error = %v, want InvalidArgument", tt.in, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsDescendant(t *testing.T) {
	tests := []struct {
		p, ancestor string
		want        bool
	}{
		{"/home/a", "/home", true},
		{"/home/a/b", "/home", true},
		{"/home", "/home", false},
		{"/home2", "/home", false},
		{"/home2/a", "/home", false},
		{"/etc", "/", true},
		{"/", "/", false},
	}

	for _, tt := range tests {
		if got := IsDescendant(tt.p, tt.ancestor); got != tt.want {
			t.Errorf("IsDescendant(%q, %q) = %v, want %v", tt.p, tt.ancestor, got, tt.want)
		}
	}
}

func TestIsChild(t *testing.T) {
	tests := []struct {
		p, dir string
		want   bool
	}{
		{"/home/a", "/home", true},
		{"/home/a/b", "/home", false},
		{"/home", "/", true},
		{"/home/a", "/", false},
		{"/homework", "/home", false},
	}

	for _, tt := range tests {
		if got := IsChild(tt.p, tt.dir); got != tt.want {
			t.Errorf("IsChild(%q, %q) = %v, want %v", tt.p, tt.dir, got, tt.want)
		}
	}
}

func TestRebase(t *testing.T) {
	tests := []struct {
		p, from, to, want string
	}{
		{"/a", "/a", "/b", "/b"},
		{"/a/x/y", "/a", "/b/c", "/b/c/x/y"},
		{"/src/f", "/src", "/dst", "/dst/f"},
	}

	for _, tt := range tests {
		if got := Rebase(tt.p, tt.from, tt.to); got != tt.want {
			t.Errorf("Rebase(%q, %q, %q) = %q, want %q", tt.p, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDir(t *testing.T) {
	if got := Dir("/home/note.txt"); got != "/home" {
		t.Errorf("Dir() = %q", got)
	}
	if got := Dir("/home"); got != "/" {
		t.Errorf("Dir() = %q", got)
	}
	if got := Dir("/"); got != "/" {
		t.Errorf("Dir() = %q", got)
	}
}
