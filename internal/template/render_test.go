package template

import "testing"

func TestRenderSimpleOutput(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{
			name: "no variables",
			src:  "Hello world",
			vars: nil,
			want: "Hello world",
		},
		{
			name: "simple variable",
			src:  "Hello {{ name }}",
			vars: map[string]any{"name": "Ava"},
			want: "Hello Ava",
		},
		{
			name: "nested path",
			src:  "{{ agent.name }} says hi",
			vars: map[string]any{"agent": map[string]any{"name": "Runner"}},
			want: "Runner says hi",
		},
		{
			name: "missing variable renders empty",
			src:  "Hello {{ missing }}!",
			vars: map[string]any{},
			want: "Hello !",
		},
		{
			name: "default filter",
			src:  "{{ city | default:\"unknown\" }}",
			vars: map[string]any{},
			want: "unknown",
		},
		{
			name: "upper filter",
			src:  "{{ name | upper }}",
			vars: map[string]any{"name": "ava"},
			want: "AVA",
		},
		{
			name: "truncate filter",
			src:  "{{ text | truncate:5 }}",
			vars: map[string]any{"text": "hello world"},
			want: "hello...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			got, err := tmpl.Render(tt.vars)
			if err != nil {
				t.Fatalf("Render returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderIfElse(t *testing.T) {
	src := "{% if premium %}Premium{% elif trial %}Trial{% else %}Free{% endif %}"
	tmpl, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	cases := []struct {
		vars map[string]any
		want string
	}{
		{map[string]any{"premium": true}, "Premium"},
		{map[string]any{"trial": true}, "Trial"},
		{map[string]any{}, "Free"},
	}
	for _, tc := range cases {
		got, err := tmpl.Render(tc.vars)
		if err != nil {
			t.Fatalf("Render returned error: %v", err)
		}
		if got != tc.want {
			t.Errorf("Render(%v) = %q, want %q", tc.vars, got, tc.want)
		}
	}
}

func TestRenderForLoop(t *testing.T) {
	tmpl, err := Parse("{% for item in items %}[{{ item }}]{% endfor %}")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got, err := tmpl.Render(map[string]any{"items": []any{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if got != "[a][b][c]" {
		t.Errorf("Render() = %q, want %q", got, "[a][b][c]")
	}
}

func TestRenderEqualityCondition(t *testing.T) {
	tmpl, err := Parse(`{% if role == "admin" %}full access{% else %}limited{% endif %}`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got, err := tmpl.Render(map[string]any{"role": "admin"})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if got != "full access" {
		t.Errorf("Render() = %q, want %q", got, "full access")
	}
}

func TestTemplateVariablesExtractsReferencedNames(t *testing.T) {
	tmpl, err := Parse("Hi {{ name }}, {% if premium %}{{ tier }}{% endif %} {% for x in items %}{{ x }}{% endfor %}")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got := tmpl.Variables()
	want := map[string]bool{"name": true, "premium": true, "tier": true, "items": true}
	if len(got) != len(want) {
		t.Fatalf("Variables() = %v, want keys %v", got, want)
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected variable name %q", n)
		}
	}
}

func TestTemplateRequiredVariablesExcludesDefaulted(t *testing.T) {
	tmpl, err := Parse(`{{ name }} {{ city | default:"unknown" }} {% if premium %}{{ tier }}{% endif %}`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	got := tmpl.RequiredVariables()
	want := map[string]bool{"name": true, "premium": true, "tier": true}
	if len(got) != len(want) {
		t.Fatalf("RequiredVariables() = %v, want keys %v (city excluded, has default)", got, want)
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected required variable %q", n)
		}
		if n == "city" {
			t.Error("city has a default() filter and must not be required")
		}
	}
}

func TestParseRejectsUnterminatedBlock(t *testing.T) {
	if _, err := Parse("{{ name"); err == nil {
		t.Error("expected error for unterminated output block")
	}
	if _, err := Parse("{% if x %}no endif"); err == nil {
		t.Error("expected error for unterminated if block")
	}
}
