package treeio

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	forest "github.com/alexaandru/go-sitter-forest"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Errors returned by the source builder.
var (
	ErrUnknownLanguage = errors.New("cannot determine the source language")
	errNoRootNode      = errors.New("tree-sitter returned no root node")
)

// languageAliases maps enry language names to grammar names where lowercasing
// is not enough.
var languageAliases = map[string]string{
	"c++":         "cpp",
	"c#":          "c_sharp",
	"shell":       "bash",
	"emacs lisp":  "elisp",
	"objective-c": "objc",
}

var languageCache sync.Map

// DetectLanguage returns the grammar name for a file, using its name and
// content. It returns "" when no language is recognized.
func DetectLanguage(name string, content []byte) string {
	detected := enry.GetLanguage(path.Base(name), content)
	if detected == "" {
		return ""
	}

	lang := strings.ToLower(detected)
	if alias, ok := languageAliases[lang]; ok {
		return alias
	}

	return strings.ReplaceAll(lang, " ", "_")
}

func grammar(name string) *sitter.Language {
	if cached, ok := languageCache.Load(name); ok {
		if lang, castOK := cached.(*sitter.Language); castOK {
			return lang
		}
	}

	var lang *sitter.Language

	func() {
		defer func() {
			_ = recover() //nolint:errcheck // unknown grammars panic inside the forest registry
		}()

		lang = forest.GetLanguage(name)
	}()

	if lang != nil {
		languageCache.Store(name, lang)
	}

	return lang
}

// ParseSource parses source code with tree-sitter. When language is empty it
// is detected from the file name and content. Named syntax nodes become tree
// nodes typed with the grammar's node kind; leaves carry their source text as
// label. Positions are 1-based lines and columns plus byte offsets.
func ParseSource(name string, content []byte, language string) (*tree.Tree, error) {
	if language == "" {
		language = DetectLanguage(name, content)
	}

	if language == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, displayName(name))
	}

	lang := grammar(language)
	if lang == nil {
		return nil, fmt.Errorf("%w: no grammar for %q", ErrUnsupportedFormat, language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	parsed, err := parser.ParseString(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s as %s: %w", displayName(name), language, err)
	}
	defer parsed.Close()

	root := parsed.RootNode()
	if root.IsNull() {
		return nil, errNoRootNode
	}

	return tree.Build(convert(root, content))
}

func convert(tsNode sitter.Node, source []byte) *tree.Node {
	start, end := tsNode.StartPoint(), tsNode.EndPoint()

	builder := tree.NewBuilder().
		WithType(tree.Type(tsNode.Type())).
		WithPosition(&tree.Positions{
			StartLine:   uint(start.Row) + 1,
			StartCol:    uint(start.Column) + 1,
			StartOffset: uint(tsNode.StartByte()),
			EndLine:     uint(end.Row) + 1,
			EndCol:      uint(end.Column) + 1,
			EndOffset:   uint(tsNode.EndByte()),
		})

	count := tsNode.NamedChildCount()
	if count == 0 {
		return builder.WithLabel(tsNode.Content(source)).Build()
	}

	children := make([]*tree.Node, 0, count)

	for idx := range count {
		child := tsNode.NamedChild(idx)
		if !child.IsNull() {
			children = append(children, convert(child, source))
		}
	}

	return builder.WithChildren(children...).Build()
}
