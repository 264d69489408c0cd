// Package pathutil holds the path arithmetic the namespace relies on.
// Hierarchy is implicit in the path string, so every descendant test is
// anchored on a separator boundary: "/home" never contains "/home2".
package pathutil

import (
	"path"
	"strings"

	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
)

const Root = "/"

// Clean normalises an absolute path. Relative and empty paths are rejected.
func Clean(p string) (string, error) {
	if p == "" {
		return "", kerrors.InvalidArgument("empty path")
	}
	if !strings.HasPrefix(p, "/") {
		return "", kerrors.InvalidArgument("path must be absolute: " + p)
	}
	return path.Clean(p), nil
}

// Dir returns the parent directory. The parent of "/" is "/".
func Dir(p string) string {
	return path.Dir(p)
}

func Base(p string) string {
	return path.Base(p)
}

// ChildPrefix is the string every strict descendant of dir starts with.
func ChildPrefix(dir string) string {
	if dir == Root {
		return Root
	}
	return dir + "/"
}

// IsDescendant reports whether p lies strictly below ancestor.
func IsDescendant(p, ancestor string) bool {
	if p == ancestor {
		return false
	}
	return strings.HasPrefix(p, ChildPrefix(ancestor))
}

// IsChild reports whether p is an immediate child of dir.
func IsChild(p, dir string) bool {
	if !IsDescendant(p, dir) {
		return false
	}
	return !strings.Contains(p[len(ChildPrefix(dir)):], "/")
}

// Rebase rewrites the from prefix of p to to. p must be from or lie below it.
func Rebase(p, from, to string) string {
	if p == from {
		return to
	}
	return ChildPrefix(to) + p[len(ChildPrefix(from)):]
}
