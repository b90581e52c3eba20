package discount

import (
	"time"

	"github.com/samber/lo"
)

// Available returns the definitions that are active and inside their
// validity window at now. Bounds are inclusive.
func Available(defs []Definition, now time.Time) []Definition {
	return lo.Filter(defs, func(def Definition, _ int) bool {
		return def.Active && def.InWindow(now)
	})
}

// InWindow reports whether now falls inside the definition's validity window.
// A nil bound is open.
func (d Definition) InWindow(now time.Time) bool {
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return false
	}
	return true
}

// MergeAutoApply returns the user's selection extended with the codes of
// every active auto-apply definition. Order is preserved and duplicates are
// dropped; the inputs are not modified.
func MergeAutoApply(selected []string, defs []Definition) []string {
	auto := lo.FilterMap(defs, func(def Definition, _ int) (string, bool) {
		return def.Code, def.Active && def.AutoApply
	})
	merged := make([]string, 0, len(selected)+len(auto))
	merged = append(merged, selected...)
	merged = append(merged, auto...)
	return lo.Uniq(merged)
}

// Selected returns the definitions whose code appears in codes.
func Selected(defs []Definition, codes []string) []Definition {
	return lo.Filter(defs, func(def Definition, _ int) bool {
		return lo.Contains(codes, def.Code)
	})
}
