package models

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
)

type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpExecute Operation = "execute"
	OpDelete  Operation = "delete"
)

// Operations lists every MAC operation in canonical order.
var Operations = []Operation{OpRead, OpWrite, OpExecute, OpDelete}

func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !slices.Contains(Operations, op) {
		return "", kerrors.InvalidOperation(s)
	}
	return op, nil
}

type Mode string

const (
	ModeEnforcing  Mode = "enforcing"
	ModePermissive Mode = "permissive"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEnforcing, ModePermissive:
		return Mode(s), nil
	default:
		return "", kerrors.InvalidMode(s)
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "directory":
		return KindDirectory, nil
	default:
		return 0, kerrors.InvalidArgument("unknown node type: " + s)
	}
}

// AccessRule holds, per operation, the roles allowed on one path. An
// operation missing from Roles is treated as "root only"; an operation present
// with an empty set is a bucket that still counts for RemoveRule.
type AccessRule struct {
	Kind  Kind
	Roles map[Operation][]string
}

// NewAccessRule returns a rule with an empty bucket for every operation.
func NewAccessRule(kind Kind) AccessRule {
	r := AccessRule{Kind: kind, Roles: make(map[Operation][]string, len(Operations))}
	for _, op := range Operations {
		r.Roles[op] = []string{}
	}
	return r
}

// Allows reports whether role is listed for op.
func (r AccessRule) Allows(op Operation, role string) bool {
	return slices.Contains(r.Roles[op], role)
}

// Has reports whether op has a bucket, empty or not.
func (r AccessRule) Has(op Operation) bool {
	_, ok := r.Roles[op]
	return ok
}

// Merge adds roles to op, keeping the set sorted and unique.
func (r *AccessRule) Merge(op Operation, roles []string) {
	if r.Roles == nil {
		r.Roles = make(map[Operation][]string)
	}
	merged := append(slices.Clone(r.Roles[op]), roles...)
	slices.Sort(merged)
	r.Roles[op] = slices.Compact(merged)
}

// Subtract removes roles from op and drops the bucket once it is empty.
func (r *AccessRule) Subtract(op Operation, roles []string) {
	kept := make([]string, 0, len(r.Roles[op]))
	for _, role := range r.Roles[op] {
		if !slices.Contains(roles, role) {
			kept = append(kept, role)
		}
	}
	if len(kept) == 0 {
		delete(r.Roles, op)
		return
	}
	r.Roles[op] = kept
}

func (r AccessRule) IsEmpty() bool {
	return len(r.Roles) == 0
}

func (r AccessRule) Clone() AccessRule {
	c := AccessRule{Kind: r.Kind, Roles: make(map[Operation][]string, len(r.Roles))}
	for op, roles := range r.Roles {
		c.Roles[op] = slices.Clone(roles)
	}
	return c
}

// MarshalJSON writes the flat mirror-file form:
// {"read": [...], "write": [...], "type": "directory"}.
func (r AccessRule) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Roles)+1)
	for op, roles := range r.Roles {
		if roles == nil {
			roles = []string{}
		}
		flat[string(op)] = roles
	}
	flat["type"] = r.Kind.String()
	return json.Marshal(flat)
}

func (r *AccessRule) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	rule := AccessRule{Kind: KindDirectory, Roles: make(map[Operation][]string)}
	for key, raw := range flat {
		if key == "type" {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("rule type: %w", err)
			}
			kind, err := ParseKind(s)
			if err != nil {
				return err
			}
			rule.Kind = kind
			continue
		}

		op, err := ParseOperation(key)
		if err != nil {
			return err
		}
		var roles []string
		if err := json.Unmarshal(raw, &roles); err != nil {
			return fmt.Errorf("rule %s: %w", key, err)
		}
		rule.Roles[op] = []string{}
		rule.Merge(op, roles)
	}

	*r = rule
	return nil
}

type AccessPolicy struct {
	Mode  Mode                  `json:"mode"`
	Rules map[string]AccessRule `json:"rules"`
}

// DefaultPolicy is the compiled-in rule set restored by a policy reset.
func DefaultPolicy() AccessPolicy {
	rule := func(read, write, execute, del []string) AccessRule {
		r := AccessRule{Kind: KindDirectory, Roles: make(map[Operation][]string, len(Operations))}
		r.Merge(OpRead, read)
		r.Merge(OpWrite, write)
		r.Merge(OpExecute, execute)
		r.Merge(OpDelete, del)
		return r
	}

	root := []string{RootRole}
	rootUser := []string{RootRole, "user"}
	everyone := []string{RootRole, "user", "guest"}

	return AccessPolicy{
		Mode: ModePermissive,
		Rules: map[string]AccessRule{
			"/":     rule(root, root, root, root),
			"/home": rule(rootUser, rootUser, rootUser, root),
			"/etc":  rule(root, root, root, root),
			"/bin":  rule(everyone, root, everyone, root),
			"/var":  rule(root, root, root, root),
			"/tmp":  rule(everyone, everyone, everyone, everyone),
		},
	}
}
