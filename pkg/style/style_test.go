package style

import (
	"testing"
	"time"
)

func TestEffectiveValue(t *testing.T) {
	v := Variable{Name: "accent", Type: VarColor, Default: "#00f"}
	if got := v.EffectiveValue(); got != "#00f" {
		t.Errorf("EffectiveValue = %q, want default", got)
	}
	v.Value = "#f00"
	if got := v.EffectiveValue(); got != "#f00" {
		t.Errorf("EffectiveValue = %q, want supplied value", got)
	}
}

func TestDocumentValues(t *testing.T) {
	doc := Document{
		ID: "s1",
		Variables: []Variable{
			{Name: "a", Default: "1"},
			{Name: "b", Default: "2", Value: "3"},
		},
	}
	values := doc.Values()
	if values["a"] != "1" || values["b"] != "3" {
		t.Errorf("Values = %v", values)
	}

	var empty Document
	values = empty.Values()
	if values == nil {
		t.Fatal("Values of a variable-less document should be usable")
	}
	values["bg"] = "#fff"
	if values["bg"] != "#fff" {
		t.Error("Values map rejects writes")
	}
}

func TestValidate(t *testing.T) {
	valid := Document{
		ID:    "s1",
		Rules: []DomainRule{{Kind: RuleDomain, Pattern: "example.com", Include: true}},
		Variables: []Variable{
			{Name: "accent", Type: VarColor, Default: "#00f"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name string
		doc  Document
	}{
		{"missing id", Document{}},
		{"unknown rule kind", Document{ID: "x", Rules: []DomainRule{{Kind: "glob", Pattern: "*"}}}},
		{"empty pattern", Document{ID: "x", Rules: []DomainRule{{Kind: RuleDomain}}}},
		{"unnamed variable", Document{ID: "x", Variables: []Variable{{Type: VarText}}}},
		{"unknown variable type", Document{ID: "x", Variables: []Variable{{Name: "v", Type: "blob"}}}},
	}
	for _, tt := range tests {
		if err := tt.doc.Validate(); err == nil {
			t.Errorf("%s: Validate should fail", tt.name)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	min := 1.0
	doc := Document{
		ID:          "s1",
		Rules:       []DomainRule{{Kind: RuleDomain, Pattern: "example.com", Include: true}},
		Variables:   []Variable{{Name: "n", Type: VarNumber, Min: &min, Options: []string{"a"}}},
		Metadata:    map[string]string{"author": "someone"},
		InstalledAt: time.Now(),
	}
	clone := doc.Clone()

	clone.Rules[0].Pattern = "mutated.com"
	*clone.Variables[0].Min = 9
	clone.Variables[0].Options[0] = "mutated"
	clone.Metadata["author"] = "mutated"

	if doc.Rules[0].Pattern != "example.com" {
		t.Error("Clone shares rule backing array")
	}
	if *doc.Variables[0].Min != 1.0 {
		t.Error("Clone shares variable bounds")
	}
	if doc.Variables[0].Options[0] != "a" {
		t.Error("Clone shares option slice")
	}
	if doc.Metadata["author"] != "someone" {
		t.Error("Clone shares metadata map")
	}
}
