package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/pkg/host"
	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

func TestParseSet(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		value   string
		wantErr bool
	}{
		{in: "accent=#ff0000", name: "accent", value: "#ff0000"},
		{in: "width=42", name: "width", value: "42"},
		{in: "empty=", name: "empty", value: ""},
		{in: "eq=a=b", name: "eq", value: "a=b"},
		{in: "novalue", wantErr: true},
		{in: "=value", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		name, value, err := parseSet(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSet(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSet(%q): %v", tt.in, err)
			continue
		}
		if name != tt.name || value != tt.value {
			t.Errorf("parseSet(%q) = %q, %q, want %q, %q", tt.in, name, value, tt.name, tt.value)
		}
	}
}

func TestResolveSetOnVariablelessStyle(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.toml")
	doc := `
name = "Plain"
source = "body { background: black; }"

[[rule]]
kind = "domain"
pattern = "example.com"
include = true
`
	if err := os.WriteFile(src, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	out := filepath.Join(dir, "out.css")
	opts := &resolveOpts{
		sets:   []string{"bg=#fff"},
		output: out,
	}
	if err := runResolve(cmd, src, opts); err != nil {
		t.Fatalf("runResolve: %v", err)
	}

	css, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(css) != "body { background: black; }" {
		t.Errorf("css = %q", css)
	}
}

func TestCapabilityFor(t *testing.T) {
	for _, name := range []string{"node", "sheet", "privileged"} {
		cap, policyErr, err := capabilityFor(name)
		if err != nil {
			t.Fatalf("capabilityFor(%q): %v", name, err)
		}
		if cap == "" {
			t.Errorf("capabilityFor(%q): empty capability", name)
		}
		if !host.IsPolicyViolation(policyErr) {
			t.Errorf("capabilityFor(%q): %v is not a policy violation", name, policyErr)
		}
	}
	if _, _, err := capabilityFor("bogus"); err == nil {
		t.Error("capabilityFor(bogus): expected error")
	}
}

func TestRuleSummary(t *testing.T) {
	doc := style.Document{
		Rules: []style.DomainRule{
			{Kind: style.RuleDomain, Pattern: "example.com", Include: true},
			{Kind: style.RuleDomain, Pattern: "example.org", Include: false},
		},
	}
	got := ruleSummary(doc)
	if got != "example.com, !example.org" {
		t.Errorf("ruleSummary = %q", got)
	}

	if got := ruleSummary(style.Document{}); got != "no rules" {
		t.Errorf("ruleSummary(empty) = %q", got)
	}

	many := style.Document{}
	for _, p := range []string{"a.com", "b.com", "c.com", "d.com", "e.com"} {
		many.Rules = append(many.Rules, style.DomainRule{Kind: style.RuleDomain, Pattern: p, Include: true})
	}
	got = ruleSummary(many)
	if !strings.HasSuffix(got, "+2") {
		t.Errorf("ruleSummary(5 rules) = %q, want +2 suffix", got)
	}
}

func TestStyleListToggle(t *testing.T) {
	docs := []style.Document{
		{ID: "a", Name: "First", Enabled: true},
		{ID: "b", Name: "Second", Enabled: false},
	}
	var model tea.Model = NewStyleListModel(docs)

	press := func(key string) {
		model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	}
	press(" ")
	press("j")
	press(" ")

	m := model.(StyleListModel)
	if len(m.Toggles) != 2 {
		t.Fatalf("toggles = %d, want 2", len(m.Toggles))
	}
	if m.Toggles[0].ID != "a" || m.Toggles[0].Enabled {
		t.Errorf("first toggle = %+v, want a disabled", m.Toggles[0])
	}
	if m.Toggles[1].ID != "b" || !m.Toggles[1].Enabled {
		t.Errorf("second toggle = %+v, want b enabled", m.Toggles[1])
	}
	if m.Styles[0].Enabled || !m.Styles[1].Enabled {
		t.Error("model styles not flipped in place")
	}
}
