// Package markdown provides lightweight markdown inspection helpers
// built on goldmark's AST.
package markdown

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// BoldSpans returns the text of every strong-emphasis span
// (`**like this**`) in source, in document order. Assistant replies use
// bold as a structured-mention convention for product names, so this is
// how the router recovers products the system itself surfaced.
func BoldSpans(source string) []string {
	src := []byte(source)
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var spans []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		em, ok := n.(*ast.Emphasis)
		if !ok || em.Level != 2 {
			return ast.WalkContinue, nil
		}
		var span string
		for child := em.FirstChild(); child != nil; child = child.NextSibling() {
			if t, ok := child.(*ast.Text); ok {
				span += string(t.Segment.Value(src))
			}
		}
		if span != "" {
			spans = append(spans, span)
		}
		return ast.WalkSkipChildren, nil
	})
	return spans
}
