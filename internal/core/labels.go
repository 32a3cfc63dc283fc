package core

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// hostClause matches one Host(...) matcher. The argument list is captured raw
// and may hold several comma separated hostnames, each quoted with backticks,
// double quotes, or not at all. HostRegexp, HostHeader and HostSNI do not match.
var hostClause = regexp.MustCompile(`\bHost\(([^()]*)\)`)

// RouterRule is one router rule label and the hostnames found in it.
type RouterRule struct {
	Router    string   `json:"router"`
	Rule      string   `json:"rule"`
	Hostnames []string `json:"hostnames"`
}

type ParsedLabels struct {
	Enabled   bool         `json:"enabled"`
	Rules     []RouterRule `json:"rules,omitempty"`
	Hostnames []string     `json:"hostnames"`
}

// ParseLabels reads the reverse-proxy labels of a container. It never fails:
// labels it cannot make sense of contribute no hostnames.
func ParseLabels(prefix string, labels map[string]string) ParsedLabels {
	pl := ParsedLabels{Hostnames: []string{}}

	if labels[prefix+".enable"] != "true" {
		return pl
	}
	pl.Enabled = true

	routerPrefix := prefix + ".http.routers."
	seen := make(map[string]struct{})

	for k, v := range labels {
		router, ok := routerFromRuleKey(routerPrefix, k)
		if !ok {
			continue
		}
		hosts := ExtractHosts(v)
		pl.Rules = append(pl.Rules, RouterRule{Router: router, Rule: v, Hostnames: hosts})
		for _, h := range hosts {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			pl.Hostnames = append(pl.Hostnames, h)
		}
	}

	sort.Strings(pl.Hostnames)
	sort.Slice(pl.Rules, func(i, j int) bool { return pl.Rules[i].Router < pl.Rules[j].Router })
	return pl
}

// ParseHostnames returns the de-duplicated hostnames declared by an enabled
// container's router rules.
func ParseHostnames(prefix string, labels map[string]string) []string {
	return ParseLabels(prefix, labels).Hostnames
}

// routerFromRuleKey matches <prefix>.http.routers.<name>.rule
func routerFromRuleKey(routerPrefix, key string) (string, bool) {
	if !strings.HasPrefix(key, routerPrefix) || !strings.HasSuffix(key, ".rule") {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(key, routerPrefix), ".rule")
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}

// ExtractHosts returns every hostname named by a Host(...) clause in a router
// rule. Clauses under an odd number of negations are skipped, and a trailing
// root dot is dropped. A rule with unbalanced parentheses or quotes yields nothing.
func ExtractHosts(rule string) []string {
	if !balanced(rule) {
		return nil
	}

	var hosts []string
	seen := make(map[string]struct{})
	for _, idx := range hostClause.FindAllStringSubmatchIndex(rule, -1) {
		if negated(rule, idx[0]) {
			continue
		}
		for _, arg := range strings.Split(rule[idx[2]:idx[3]], ",") {
			h := strings.ToLower(strings.Trim(strings.TrimSpace(arg), "`\""))
			h = strings.TrimSuffix(h, ".")
			if h == "" {
				continue
			}
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// negated reports whether the matcher starting at pos sits under an odd number
// of '!' operators, counting both a '!' right before it and '!' before each
// enclosing group.
func negated(rule string, pos int) bool {
	var groups []bool
	var quote rune
	bang := false
	for _, r := range rule[:pos] {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			continue
		case r == '`' || r == '"':
			quote = r
		case r == '(':
			groups = append(groups, bang)
		case r == ')':
			if len(groups) > 0 {
				groups = groups[:len(groups)-1]
			}
		}
		if !unicode.IsSpace(r) {
			bang = r == '!'
		}
	}

	odd := bang
	for _, g := range groups {
		if g {
			odd = !odd
		}
	}
	return odd
}

// balanced checks that parentheses nest correctly outside quoted sections and
// that every quote is closed.
func balanced(rule string) bool {
	depth := 0
	var quote rune
	for _, r := range rule {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '`' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && quote == 0
}
