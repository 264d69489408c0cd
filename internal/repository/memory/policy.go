package memory

import (
	"context"

	"github.com/S1riyS/tnfs/internal/models"
)

type policyRepository struct {
	s *Store
}

func (r *policyRepository) Mode(ctx context.Context) (models.Mode, bool, error) {
	var (
		mode models.Mode
		set  bool
	)
	err := r.s.do(ctx, func(st *state) error {
		mode, set = st.mode, st.modeSet
		return nil
	})
	return mode, set, err
}

func (r *policyRepository) SetMode(ctx context.Context, mode models.Mode) error {
	return r.s.do(ctx, func(st *state) error {
		st.mode, st.modeSet = mode, true
		return nil
	})
}

func (r *policyRepository) Rule(ctx context.Context, path string) (*models.AccessRule, error) {
	var rule *models.AccessRule
	err := r.s.do(ctx, func(st *state) error {
		if stored, ok := st.rules[path]; ok {
			c := stored.Clone()
			rule = &c
		}
		return nil
	})
	return rule, err
}

func (r *policyRepository) Rules(ctx context.Context) (map[string]models.AccessRule, error) {
	rules := make(map[string]models.AccessRule)
	err := r.s.do(ctx, func(st *state) error {
		for path, rule := range st.rules {
			rules[path] = rule.Clone()
		}
		return nil
	})
	return rules, err
}

func (r *policyRepository) PutRule(ctx context.Context, path string, rule models.AccessRule) error {
	return r.s.do(ctx, func(st *state) error {
		if rule.IsEmpty() {
			delete(st.rules, path)
			return nil
		}
		st.rules[path] = rule.Clone()
		return nil
	})
}

func (r *policyRepository) ReplaceRules(ctx context.Context, rules map[string]models.AccessRule) error {
	return r.s.do(ctx, func(st *state) error {
		st.rules = make(map[string]models.AccessRule, len(rules))
		for path, rule := range rules {
			if !rule.IsEmpty() {
				st.rules[path] = rule.Clone()
			}
		}
		return nil
	})
}
