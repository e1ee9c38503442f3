package preview

import (
	"testing"

	"github.com/starford/vellum/internal/rtf"
)

func TestText_Markdown(t *testing.T) {
	src := "---\ntitle: Hello\ntags:\n  - go\n---\n# Heading\n\nSome *emphasis* and a [link](http://x).\n\n- item one\n"
	got := Text("/n/Hello.md", src, 0)
	want := "Heading Some emphasis and a link. item one"
	if got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestText_MarkdownCodeBlock(t *testing.T) {
	src := "intro\n\n```\nfmt.Println(1)\n```\n"
	got := Text("a.md", src, 0)
	if got != "intro fmt.Println(1)" {
		t.Errorf("Text = %q", got)
	}
}

func TestText_RTF(t *testing.T) {
	got := Text("a.rtf", string(rtf.Encode("Line one\nLine two")), 0)
	if got != "Line one Line two" {
		t.Errorf("Text = %q", got)
	}
}

func TestText_PlainTruncates(t *testing.T) {
	got := Text("a.txt", "abcdef   ghijkl", 8)
	if got != "abcdef g…" {
		t.Errorf("Text = %q", got)
	}
}

func TestSplitFrontmatter_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	fm, body := splitFrontmatter(input)
	if fm != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if body != string(input) {
		t.Errorf("body = %q", body)
	}
}

func TestSplitFrontmatter_Unclosed(t *testing.T) {
	fm, body := splitFrontmatter([]byte("---\ntitle: x\nno end"))
	if fm != nil || body != "---\ntitle: x\nno end" {
		t.Errorf("fm=%v body=%q", fm, body)
	}
}
