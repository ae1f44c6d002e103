package treeio

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

//go:embed schema/tree-schema.json
var treeSchema []byte

// Schema returns the JSON schema that tree documents are validated against.
func Schema() []byte {
	return bytes.Clone(treeSchema)
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(treeSchema))
})

// document is the serialized shape of a tree: either a nested node or a flat
// list of records under "nodes".
type document struct {
	ID       string        `json:"id,omitempty"       yaml:"id,omitempty"`
	Type     string        `json:"type,omitempty"     yaml:"type,omitempty"`
	Label    string        `json:"label,omitempty"    yaml:"label,omitempty"`
	Pos      *position     `json:"pos,omitempty"      yaml:"pos,omitempty"`
	Children []*document   `json:"children,omitempty" yaml:"children,omitempty"`
	Nodes    []tree.Record `json:"nodes,omitempty"    yaml:"nodes,omitempty"`
}

type position struct {
	StartLine   uint `json:"start_line,omitempty"   yaml:"start_line,omitempty"`
	StartCol    uint `json:"start_col,omitempty"    yaml:"start_col,omitempty"`
	StartOffset uint `json:"start_offset,omitempty" yaml:"start_offset,omitempty"`
	EndLine     uint `json:"end_line,omitempty"     yaml:"end_line,omitempty"`
	EndCol      uint `json:"end_col,omitempty"      yaml:"end_col,omitempty"`
	EndOffset   uint `json:"end_offset,omitempty"   yaml:"end_offset,omitempty"`
}

// DecodeJSON validates a JSON tree document against the schema and builds it.
func DecodeJSON(content []byte) (*tree.Tree, error) {
	var raw any

	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	err := dec.Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrSyntax, err)
	}

	err = validate(raw)
	if err != nil {
		return nil, err
	}

	var doc document

	err = json.Unmarshal(content, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	return doc.build()
}

// DecodeYAML validates a YAML tree document against the schema and builds it.
func DecodeYAML(content []byte) (*tree.Tree, error) {
	var raw any

	err := yaml.Unmarshal(content, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid YAML: %w", ErrSyntax, err)
	}

	err = validate(raw)
	if err != nil {
		return nil, err
	}

	var doc document

	err = yaml.Unmarshal(content, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	return doc.build()
}

func validate(raw any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("load tree schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaViolation, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, verr.Field()+": "+verr.Description())
	}

	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(problems, "; "))
}

func (doc *document) build() (*tree.Tree, error) {
	if len(doc.Nodes) > 0 {
		return tree.Assemble(doc.Nodes)
	}

	return tree.Build(doc.node())
}

func (doc *document) node() *tree.Node {
	children := make([]*tree.Node, 0, len(doc.Children))
	for _, child := range doc.Children {
		children = append(children, child.node())
	}

	builder := tree.NewBuilder().
		WithID(doc.ID).
		WithType(tree.Type(doc.Type)).
		WithLabel(doc.Label).
		WithChildren(children...)

	if doc.Pos != nil {
		builder.WithPosition(&tree.Positions{
			StartLine:   doc.Pos.StartLine,
			StartCol:    doc.Pos.StartCol,
			StartOffset: doc.Pos.StartOffset,
			EndLine:     doc.Pos.EndLine,
			EndCol:      doc.Pos.EndCol,
			EndOffset:   doc.Pos.EndOffset,
		})
	}

	return builder.Build()
}

func fromNode(n *tree.Node) *document {
	doc := &document{ID: n.ID, Type: string(n.Type), Label: n.Label}

	if n.Pos != nil {
		pos := position(*n.Pos)
		doc.Pos = &pos
	}

	for _, child := range n.Children {
		doc.Children = append(doc.Children, fromNode(child))
	}

	return doc
}

// Write serializes t in the given format. FormatSource cannot be written.
func Write(w io.Writer, t *tree.Tree, format Format) error {
	switch format {
	case FormatJSON, FormatAuto:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return wrapWrite(enc.Encode(fromNode(t.Root())))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		err := enc.Encode(fromNode(t.Root()))
		if err != nil {
			return wrapWrite(err)
		}

		return wrapWrite(enc.Close())
	case FormatFlat:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return wrapWrite(enc.Encode(document{Nodes: t.Records()}))
	case FormatLisp:
		_, err := io.WriteString(w, ToLisp(t.Root())+"\n")

		return wrapWrite(err)
	default:
		return fmt.Errorf("%w: cannot write %q", ErrUnsupportedFormat, format)
	}
}

func wrapWrite(err error) error {
	if err != nil {
		return fmt.Errorf("write tree: %w", err)
	}

	return nil
}
