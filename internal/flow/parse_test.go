package flow

import "testing"

func TestParseStructuredInput(t *testing.T) {
	prompt, schema, err := parseStructuredInput("Summarize\n{\"title\":\"x\"}")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if prompt != "Summarize" {
		t.Errorf("expected prompt 'Summarize', got %q", prompt)
	}
	if schema["title"] != "x" {
		t.Errorf("expected schema title 'x', got %v", schema["title"])
	}
}

func TestParseStructuredInput_SingleLine(t *testing.T) {
	if _, _, err := parseStructuredInput("onlyoneline"); err != ErrStructuredFormat {
		t.Errorf("expected ErrStructuredFormat, got %v", err)
	}
}

func TestParseStructuredInput_InvalidJSON(t *testing.T) {
	if _, _, err := parseStructuredInput("prompt\nnot json"); err != ErrInvalidSchema {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestParseURLInput(t *testing.T) {
	cases := []struct {
		name       string
		input      string
		wantURL    string
		wantPrompt string
		wantErr    bool
	}{
		{"url with prompt", "https://example.com\nExplain it", "https://example.com", "Explain it", false},
		{"url alone gets default prompt", "https://example.com", "https://example.com", defaultURLPrompt, false},
		{"http scheme accepted", "http://example.com", "http://example.com", defaultURLPrompt, false},
		{"missing scheme", "notaurl\nExplain it", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			url, prompt, err := parseURLInput(c.input)
			if c.wantErr {
				if err != ErrInvalidURL {
					t.Errorf("expected ErrInvalidURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if url != c.wantURL || prompt != c.wantPrompt {
				t.Errorf("expected (%q, %q), got (%q, %q)", c.wantURL, c.wantPrompt, url, prompt)
			}
		})
	}
}

func TestParseSearchInput(t *testing.T) {
	query, prompt := parseSearchInput("golang generics\nCompare with java")
	if query != "golang generics" || prompt != "Compare with java" {
		t.Errorf("expected query and prompt split, got (%q, %q)", query, prompt)
	}

	query, prompt = parseSearchInput("golang generics")
	if query != "golang generics" || prompt != defaultSearchPrompt {
		t.Errorf("expected default prompt, got (%q, %q)", query, prompt)
	}
}
