package mac

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/S1riyS/tnfs/internal/models"
	"github.com/S1riyS/tnfs/internal/pkg/pathutil"
	"github.com/tidwall/jsonc"
)

// Mirror is the human-editable copy of the rule table. The store holds the
// authoritative policy; the mirror is rewritten after every committed policy
// change and read back only on bootstrap or explicit import. Comments and
// trailing commas are tolerated on read.
type Mirror struct {
	path string
	mu   sync.Mutex
}

// NewMirror returns a mirror at path. An empty path disables the mirror.
func NewMirror(path string) *Mirror {
	return &Mirror{path: path}
}

func (m *Mirror) Path() string {
	if m == nil {
		return ""
	}
	return m.path
}

func (m *Mirror) enabled() bool {
	return m != nil && m.path != ""
}

// Load reads and validates the mirror. It returns false when the file does
// not exist.
func (m *Mirror) Load() (*models.AccessPolicy, bool, error) {
	if !m.enabled() {
		return nil, false, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", m.path, err)
	}

	policy, err := ParsePolicy(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", m.path, err)
	}
	return policy, true, nil
}

// ParsePolicy decodes a JSONC policy document and normalises its rule paths.
func ParsePolicy(data []byte) (*models.AccessPolicy, error) {
	var raw models.AccessPolicy
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}

	mode, err := models.ParseMode(string(raw.Mode))
	if err != nil {
		return nil, err
	}

	policy := &models.AccessPolicy{Mode: mode, Rules: make(map[string]models.AccessRule, len(raw.Rules))}
	for path, rule := range raw.Rules {
		clean, err := pathutil.Clean(path)
		if err != nil {
			return nil, err
		}
		policy.Rules[clean] = rule
	}
	return policy, nil
}

// Save replaces the mirror atomically.
func (m *Mirror) Save(policy models.AccessPolicy) error {
	if !m.enabled() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if policy.Rules == nil {
		policy.Rules = map[string]models.AccessRule{}
	}
	data, err := json.MarshalIndent(policy, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary mirror file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary mirror file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary mirror file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary mirror file: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming mirror file into place: %w", err)
	}

	return nil
}
