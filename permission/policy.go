package permission

import (
	"errors"
	"strings"
)

// Decision is the outcome of evaluating a request path against a [Policy].
type Decision int

const (
	// Allow lets the request through.
	Allow Decision = iota
	// Unauthenticated means the route needs an identity and none is attached.
	Unauthenticated
	// Forbidden means an identity is attached but its role is not permitted.
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Matcher reports whether a rule applies to a request path.
type Matcher func(path string) bool

// Exact matches any of the listed paths literally.
func Exact(paths ...string) Matcher {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(path string) bool {
		_, ok := set[path]
		return ok
	}
}

// Prefix matches a listed path or anything below it.
func Prefix(prefixes ...string) Matcher {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		cleaned = append(cleaned, strings.TrimSuffix(p, "/"))
	}
	return func(path string) bool {
		for _, p := range cleaned {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

// Segment matches paths that contain name as a whole path segment anywhere.
func Segment(name string) Matcher {
	return func(path string) bool {
		for _, seg := range strings.Split(path, "/") {
			if seg == name {
				return true
			}
		}
		return false
	}
}

// Rule binds a matcher to a requirement. A Public rule needs no identity. Otherwise
// an identity is required, and when Roles is non-empty its role must be in Roles.
type Rule struct {
	Name   string
	Match  Matcher
	Public bool
	Roles  RoleSet
}

// Policy is an immutable, ordered rule list evaluated first-match. Paths no rule
// matches require an authenticated identity of any role.
type Policy struct {
	rules []Rule
}

// NewPolicy validates rules and returns a policy.
func NewPolicy(rules ...Rule) (*Policy, error) {
	for _, r := range rules {
		if r.Match == nil {
			return nil, errors.New("policy rule " + r.Name + " has no matcher")
		}
		if r.Public && !r.Roles.Empty() {
			return nil, errors.New("policy rule " + r.Name + " is public but lists roles")
		}
	}
	return &Policy{rules: append([]Rule(nil), rules...)}, nil
}

// PublicPaths is the allowlist of the default policy.
var PublicPaths = []string{
	"/session/login",
	"/session/register",
	"/session/refresh-token",
	"/session/logout",
	"/healthz",
	"/metrics",
}

// DocsPrefixes are API documentation paths that never need an identity.
var DocsPrefixes = []string{
	"/api-docs",
	"/api-docs-op",
	"/swagger-ui",
}

// DefaultPolicy returns the standard rule set.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(
		Rule{Name: "public", Match: Exact(PublicPaths...), Public: true},
		Rule{Name: "docs", Match: Prefix(DocsPrefixes...), Public: true},
		Rule{Name: "moderator", Match: Segment("moderator"), Roles: Roles(RoleModerator, RoleAdmin)},
		Rule{Name: "admin", Match: Segment("admin"), Roles: Roles(RoleAdmin)},
	)
	return p
}

// Rule returns the first rule matching path, or false when the fallback applies.
func (p *Policy) Rule(path string) (Rule, bool) {
	for _, r := range p.rules {
		if r.Match(path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Public reports whether path needs no identity.
func (p *Policy) Public(path string) bool {
	r, ok := p.Rule(path)
	return ok && r.Public
}

// Decide evaluates path for a caller. authenticated is false for anonymous
// requests, in which case role is ignored.
func (p *Policy) Decide(path string, role Role, authenticated bool) Decision {
	r, ok := p.Rule(path)
	if ok && r.Public {
		return Allow
	}
	if !authenticated {
		return Unauthenticated
	}
	if ok && !r.Roles.Empty() && !r.Roles.Has(role) {
		return Forbidden
	}
	return Allow
}
