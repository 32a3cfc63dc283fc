package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func enabled(rules map[string]string) map[string]string {
	labels := map[string]string{"traefik.enable": "true"}
	for k, v := range rules {
		labels[k] = v
	}
	return labels
}

func TestParseHostnames_RequiresEnableFlag(t *testing.T) {
	rule := map[string]string{"traefik.http.routers.web.rule": "Host(`app.example.com`)"}

	tests := []struct {
		name   string
		labels map[string]string
	}{
		{name: "nil labels", labels: nil},
		{name: "empty labels", labels: map[string]string{}},
		{name: "flag missing", labels: rule},
		{name: "flag false", labels: map[string]string{"traefik.enable": "false", "traefik.http.routers.web.rule": rule["traefik.http.routers.web.rule"]}},
		{name: "flag not exactly true", labels: map[string]string{"traefik.enable": "TRUE", "traefik.http.routers.web.rule": rule["traefik.http.routers.web.rule"]}},
		{name: "unrelated labels", labels: map[string]string{"com.docker.compose.project": "demo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ParseHostnames("traefik", tt.labels))
		})
	}
}

func TestParseHostnames_QuotingStyles(t *testing.T) {
	rules := []string{
		"Host(`a.b.com`)",
		`Host("a.b.com")`,
		"Host(a.b.com)",
		"Host( `a.b.com` )",
	}
	for _, rule := range rules {
		t.Run(rule, func(t *testing.T) {
			got := ParseHostnames("traefik", enabled(map[string]string{"traefik.http.routers.web.rule": rule}))
			assert.Equal(t, []string{"a.b.com"}, got)
		})
	}
}

func TestParseHostnames_MultipleClauses(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want []string
	}{
		{name: "or of two hosts", rule: "Host(`a.example.com`) || Host(`b.example.com`)", want: []string{"a.example.com", "b.example.com"}},
		{name: "identical hosts deduplicated", rule: "Host(`a.example.com`) || Host(\"a.example.com\")", want: []string{"a.example.com"}},
		{name: "comma separated arguments", rule: "Host(`a.example.com`, `b.example.com`)", want: []string{"a.example.com", "b.example.com"}},
		{name: "combined with path", rule: "Host(`a.example.com`) && PathPrefix(`/api`)", want: []string{"a.example.com"}},
		{name: "negated and grouped", rule: "(Host(`a.example.com`) || Host(`b.example.com`)) && !Path(`/x`)", want: []string{"a.example.com", "b.example.com"}},
		{name: "host regexp ignored", rule: "HostRegexp(`{sub:[a-z]+}.example.com`)", want: []string{}},
		{name: "mixed case normalized", rule: "Host(`App.Example.com`)", want: []string{"app.example.com"}},
		{name: "negated host skipped", rule: "Host(`a.example.com`) && !Host(`b.example.com`)", want: []string{"a.example.com"}},
		{name: "negated host with space", rule: "PathPrefix(`/api`) && ! Host(`b.example.com`)", want: []string{}},
		{name: "negated group skipped", rule: "Host(`a.example.com`) && !(Host(`b.example.com`) || Host(`c.example.com`))", want: []string{"a.example.com"}},
		{name: "double negation kept", rule: "!(!Host(`a.example.com`))", want: []string{"a.example.com"}},
		{name: "trailing dot normalized", rule: "Host(`app.example.com`) || Host(`app.example.com.`)", want: []string{"app.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHostnames("traefik", enabled(map[string]string{"traefik.http.routers.web.rule": tt.rule}))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHostnames_MalformedRulesYieldNothing(t *testing.T) {
	rules := []string{
		"Host()",
		"Host(`a.example.com`",
		"Host(`a.example.com`))",
		"Host(`a.example.com)",
		"Host",
		"",
	}
	for _, rule := range rules {
		t.Run(rule, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got := ParseHostnames("traefik", enabled(map[string]string{"traefik.http.routers.web.rule": rule}))
				assert.Empty(t, got)
			})
		})
	}
}

func TestParseHostnames_MalformedLabelDoesNotAffectOthers(t *testing.T) {
	labels := enabled(map[string]string{
		"traefik.http.routers.broken.rule": "Host(`bad.example.com`",
		"traefik.http.routers.web.rule":    "Host(`good.example.com`)",
	})
	assert.Equal(t, []string{"good.example.com"}, ParseHostnames("traefik", labels))
}

func TestParseHostnames_MultipleRouters(t *testing.T) {
	labels := enabled(map[string]string{
		"traefik.http.routers.web.rule":        "Host(`www.example.com`)",
		"traefik.http.routers.api.rule":        "Host(`api.example.com`) || Host(`www.example.com`)",
		"traefik.http.routers.web.entrypoints": "websecure",
		"traefik.http.services.web.loadbalancer.server.port": "8080",
		"traefik.http.routers.nested.name.rule":              "Host(`ignored.example.com`)",
	})

	assert.Equal(t, []string{"api.example.com", "www.example.com"}, ParseHostnames("traefik", labels))
}

func TestParseLabels_Rules(t *testing.T) {
	labels := enabled(map[string]string{
		"traefik.http.routers.web.rule": "Host(`www.example.com`)",
		"traefik.http.routers.api.rule": "Host(`api.example.com`)",
	})

	pl := ParseLabels("traefik", labels)
	assert.True(t, pl.Enabled)
	if assert.Len(t, pl.Rules, 2) {
		assert.Equal(t, "api", pl.Rules[0].Router)
		assert.Equal(t, []string{"api.example.com"}, pl.Rules[0].Hostnames)
		assert.Equal(t, "web", pl.Rules[1].Router)
	}
}

func TestParseHostnames_CustomPrefix(t *testing.T) {
	labels := map[string]string{
		"edge.enable":                "true",
		"edge.http.routers.web.rule": "Host(`app.example.com`)",
	}
	assert.Equal(t, []string{"app.example.com"}, ParseHostnames("edge", labels))
	assert.Empty(t, ParseHostnames("traefik", labels))
}

func TestExtractHosts_NegationInsideQuotesIgnored(t *testing.T) {
	assert.Equal(t, []string{"a.example.com"}, ExtractHosts("Path(`/!`) && Host(`a.example.com`)"))
}
