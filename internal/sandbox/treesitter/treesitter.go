// Package treesitter checks non-Go source languages for syntax errors using
// go-tree-sitter grammars, grounded on the teacher's world.TreeSitterParser
// (internal/world/ast_treesitter.go). Tree-sitter is an error-tolerant
// parser: a malformed file still produces a tree, so validity is judged by
// walking it for ERROR/MISSING nodes rather than a parse failure.
package treesitter

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codenerd/internal/sandbox"
)

// Checker implements sandbox.SyntaxChecker for python, rust, javascript,
// and typescript using tree-sitter grammars.
type Checker struct {
	languages map[string]func() *sitter.Language
}

// New builds a treesitter.Checker with the supported grammar set.
func New() *Checker {
	return &Checker{
		languages: map[string]func() *sitter.Language{
			"python":     python.GetLanguage,
			"rust":       rust.GetLanguage,
			"javascript": javascript.GetLanguage,
			"typescript": typescript.GetLanguage,
		},
	}
}

func (c *Checker) SupportsLanguage(language string) bool {
	_, ok := c.languages[language]
	return ok
}

func (c *Checker) Check(language, source string) sandbox.CheckResult {
	grammar, ok := c.languages[language]
	if !ok {
		return sandbox.CheckResult{Valid: true}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return sandbox.CheckResult{Valid: false, Errors: []string{err.Error()}}
	}
	defer tree.Close()

	var errs []string
	collectErrors(tree.RootNode(), source, &errs)
	if len(errs) > 0 {
		return sandbox.CheckResult{Valid: false, Errors: errs}
	}
	return sandbox.CheckResult{Valid: true}
}

func collectErrors(n *sitter.Node, source string, errs *[]string) {
	if n.IsError() || n.IsMissing() {
		point := n.StartPoint()
		*errs = append(*errs, syntaxErrorMessage(n, point.Row, point.Column))
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectErrors(n.Child(i), source, errs)
	}
}

func syntaxErrorMessage(n *sitter.Node, row, column uint32) string {
	kind := "syntax error"
	if n.IsMissing() {
		kind = "missing token"
	}
	return kind + " at line " + itoa(int(row)+1) + ", column " + itoa(int(column)+1)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
