package treeio

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// ParseLisp builds a tree from an s-expression of the form
// (Type "label" child...). The label is optional, types that contain
// spaces, quotes or parentheses are written as quoted strings, and ';' starts
// a comment running to the end of the line.
func ParseLisp(src string) (*tree.Tree, error) {
	p := &lispParser{src: src, line: 1, col: 1}

	root, err := p.parse()
	if err != nil {
		return nil, err
	}

	return tree.Build(root)
}

type lispParser struct {
	src  string
	off  int
	line int
	col  int
}

func (p *lispParser) parse() (*tree.Node, error) {
	var (
		root  *tree.Node
		stack []*tree.Node
	)

	for {
		p.skipSpace()

		if p.off >= len(p.src) {
			break
		}

		switch p.src[p.off] {
		case '(':
			p.advance()

			node, err := p.header()
			if err != nil {
				return nil, err
			}

			switch {
			case len(stack) > 0:
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			case root != nil:
				return nil, p.fail("more than one root expression")
			default:
				root = node
			}

			stack = append(stack, node)
		case ')':
			if len(stack) == 0 {
				return nil, p.fail("unexpected ')'")
			}

			p.advance()

			stack = stack[:len(stack)-1]
		default:
			return nil, p.fail(fmt.Sprintf("unexpected %q outside a node", p.src[p.off]))
		}
	}

	if len(stack) > 0 {
		return nil, p.fail(fmt.Sprintf("%d unclosed expression(s)", len(stack)))
	}

	if root == nil {
		return nil, p.fail("empty document")
	}

	return root, nil
}

// header reads the type and optional label following an opening parenthesis.
func (p *lispParser) header() (*tree.Node, error) {
	p.skipSpace()

	nodeType, err := p.token()
	if err != nil {
		return nil, err
	}

	if nodeType == "" {
		return nil, p.fail("missing node type")
	}

	p.skipSpace()

	var label string

	if p.off < len(p.src) && p.src[p.off] == '"' {
		label, err = p.quoted()
		if err != nil {
			return nil, err
		}
	}

	return tree.New(tree.Type(nodeType), label), nil
}

func (p *lispParser) token() (string, error) {
	if p.off < len(p.src) && p.src[p.off] == '"' {
		return p.quoted()
	}

	start := p.off

	for p.off < len(p.src) && !isDelimiter(rune(p.src[p.off])) {
		p.advance()
	}

	return p.src[start:p.off], nil
}

func (p *lispParser) quoted() (string, error) {
	line, col := p.line, p.col
	start := p.off

	p.advance()

	for p.off < len(p.src) {
		switch p.src[p.off] {
		case '\\':
			p.advance()
		case '"':
			p.advance()

			value, err := strconv.Unquote(p.src[start:p.off])
			if err != nil {
				return "", fmt.Errorf("%w: line %d col %d: bad string: %w", ErrSyntax, line, col, err)
			}

			return value, nil
		}

		p.advance()
	}

	return "", fmt.Errorf("%w: line %d col %d: unterminated string", ErrSyntax, line, col)
}

func (p *lispParser) skipSpace() {
	for p.off < len(p.src) {
		c := p.src[p.off]

		switch {
		case c == ';':
			for p.off < len(p.src) && p.src[p.off] != '\n' {
				p.advance()
			}
		case unicode.IsSpace(rune(c)):
			p.advance()
		default:
			return
		}
	}
}

func (p *lispParser) advance() {
	if p.off >= len(p.src) {
		return
	}

	if p.src[p.off] == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}

	p.off++
}

func (p *lispParser) fail(msg string) error {
	return fmt.Errorf("%w: line %d col %d: %s", ErrSyntax, p.line, p.col, msg)
}

func isDelimiter(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' || r == ';'
}

// ToLisp renders the subtree rooted at n as an indented s-expression. For
// nodes of a built tree, whose types are never empty, ParseLisp reads the
// output back to an equal tree.
func ToLisp(n *tree.Node) string {
	var sb strings.Builder

	writeLisp(&sb, n, 0)

	return sb.String()
}

func writeLisp(sb *strings.Builder, n *tree.Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteByte('(')
	sb.WriteString(lispAtom(string(n.Type)))

	if n.Label != "" {
		sb.WriteByte(' ')
		sb.WriteString(strconv.Quote(n.Label))
	}

	for _, child := range n.Children {
		sb.WriteByte('\n')
		writeLisp(sb, child, depth+1)
	}

	sb.WriteByte(')')
}

func lispAtom(s string) string {
	if s == "" || strings.IndexFunc(s, isDelimiter) >= 0 {
		return strconv.Quote(s)
	}

	return s
}
