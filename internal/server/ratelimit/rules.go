package ratelimit

import (
	"strings"
	"time"
)

// Rule limits one method on the paths matching Path.
//
// A "*" segment matches exactly one path segment, so "/documents/*/submit"
// covers every token. A Path ending in "/" matches any deeper path by prefix.
type Rule struct {
	Path   string
	Method string
	Limit  int           // requests per Window; zero or less is unlimited
	Window time.Duration
	Burst  int // bucket capacity, Limit when zero
}

func (r Rule) capacity() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Limit
}

// key names the bucket a rule shares between all the paths it matches
func (r Rule) key() string {
	return r.Method + " " + r.Path
}

// DefaultRules returns the built-in per-route limits. Requests that match no
// rule use Config.Default.
func DefaultRules() []Rule {
	return []Rule{
		// Unauthenticated entry points; token guessing is limited per client
		{Path: "/auth/login", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},
		{Path: "/documents/*", Method: "GET", Limit: 30, Window: time.Minute, Burst: 10},
		{Path: "/documents/*/submit", Method: "POST", Limit: 20, Window: time.Minute, Burst: 5},
		{Path: "/files/", Method: "GET", Limit: 60, Window: time.Minute, Burst: 20},

		// Outgoing e-mail
		{Path: "/applications/*/documents/links/send", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},

		// Stage administration
		{Path: "/companies/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/companies/", Method: "PATCH", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/companies/", Method: "PUT", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/companies/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// healthRule exempts the health check
var healthRule = Rule{Path: "/health", Method: "GET"}

// Match returns the rule for a request, or nil when none applies. Exact
// segment matches win over prefix matches.
func Match(path, method string, rules []Rule) *Rule {
	if path == healthRule.Path && method == healthRule.Method {
		return &healthRule
	}
	for i := range rules {
		if rules[i].Method == method && matchSegments(rules[i].Path, path) {
			return &rules[i]
		}
	}
	for i := range rules {
		if rules[i].Method == method && strings.HasSuffix(rules[i].Path, "/") && matchPrefix(rules[i].Path, path) {
			return &rules[i]
		}
	}
	return nil
}

func segments(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func matchSegments(pattern, path string) bool {
	ps, xs := segments(pattern), segments(path)
	if len(ps) != len(xs) || strings.HasSuffix(pattern, "/") != strings.HasSuffix(path, "/") {
		return false
	}
	return matchLeading(ps, xs)
}

func matchPrefix(pattern, path string) bool {
	ps, xs := segments(pattern), segments(path)
	return len(xs) > len(ps) && matchLeading(ps, xs)
}

func matchLeading(ps, xs []string) bool {
	for i := range ps {
		if ps[i] != "*" && ps[i] != xs[i] {
			return false
		}
	}
	return true
}
