// Package allowlist decides which remote command names a target is willing
// to execute.
package allowlist

import (
	"fmt"
	"sort"
	"strings"
)

// Policy is an allow/deny decision over command names. Names are matched
// case-insensitively. A nil Policy allows everything.
type Policy struct {
	allow map[string]bool
	deny  map[string]bool
}

// New builds a policy. An empty allow list permits every name not in deny;
// deny always wins. "*" in deny blocks everything not explicitly allowed.
func New(allow, deny []string) *Policy {
	return &Policy{allow: toSet(allow), deny: toSet(deny)}
}

// IsAllowed reports whether name may run.
func (p *Policy) IsAllowed(name string) bool {
	if p == nil {
		return true
	}
	name = normalize(name)
	if p.deny[name] {
		return false
	}
	if len(p.allow) > 0 {
		return p.allow[name]
	}
	return !p.deny["*"]
}

// Check returns an error naming the command if it is not allowed.
func (p *Policy) Check(name string) error {
	if p.IsAllowed(name) {
		return nil
	}
	return fmt.Errorf("command %q is not in the allowlist", normalize(name))
}

// Filter returns the subset of names the policy allows, sorted.
func (p *Policy) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if p.IsAllowed(n) {
			out = append(out, normalize(n))
		}
	}
	sort.Strings(out)
	return out
}

// ListDenied returns the denied names, sorted.
func (p *Policy) ListDenied() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.deny))
	for n := range p.deny {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			set[n] = true
		}
	}
	return set
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
