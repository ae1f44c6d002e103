package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/treediff/pkg/render"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
)

// Tool name constants.
const (
	ToolNameDiff  = "tree_diff"
	ToolNameParse = "tree_parse"
)

// MaxInputBytes is the default limit for each document passed to a tool (4 MB).
const MaxInputBytes = 4 << 20

// Sentinel errors for tool input validation.
var (
	// ErrEmptyDocument indicates a required document parameter is empty.
	ErrEmptyDocument = errors.New("document parameter is required and must not be empty")
)

// Tool description constants.
const (
	diffToolDescription = "Compute a structural edit script (insert, delete, update, move) between two trees. " +
		"Accepts JSON, YAML, flat record or s-expression tree documents, or source code parsed with tree-sitter."

	parseToolDescription = "Parse a tree document or source code and return the tree in JSON, YAML, " +
		"flat record or s-expression form."
)

// Input types (auto-generate JSON schemas via struct tags).

// DiffInput is the input schema for the tree_diff tool.
type DiffInput struct {
	Src      string `json:"src"                jsonschema:"source tree document or source code"`
	Dst      string `json:"dst"                jsonschema:"destination tree document or source code"`
	SrcName  string `json:"src_name,omitempty" jsonschema:"optional file name of src used for format and language detection"`
	DstName  string `json:"dst_name,omitempty" jsonschema:"optional file name of dst used for format and language detection"`
	Format   string `json:"format,omitempty"   jsonschema:"input format: auto json yaml flat lisp or source (default: auto)"`
	Language string `json:"language,omitempty" jsonschema:"tree-sitter grammar for source input (e.g. go python java)"`
	Output   string `json:"output,omitempty"   jsonschema:"text rendering: text table json summary mappings or tree (default: text)"`
}

// ParseInput is the input schema for the tree_parse tool.
type ParseInput struct {
	Content  string `json:"content"            jsonschema:"tree document or source code"`
	Name     string `json:"name,omitempty"     jsonschema:"optional file name used for format and language detection"`
	Format   string `json:"format,omitempty"   jsonschema:"input format: auto json yaml flat lisp or source (default: auto)"`
	Language string `json:"language,omitempty" jsonschema:"tree-sitter grammar for source input (e.g. go python java)"`
	Output   string `json:"output,omitempty"   jsonschema:"output format: json yaml flat or lisp (default: lisp)"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// textResult builds a CallToolResult with text content and structured data.
func textResult(text string, value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: text},
		},
	}, ToolOutput{Data: value}, nil
}

func (s *Server) load(name, content, format, language string) (*tree.Tree, error) {
	if content == "" {
		return nil, ErrEmptyDocument
	}

	parsedFormat, err := treeio.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	opts := treeio.Options{
		Format:       parsedFormat,
		Language:     language,
		MaxInputSize: s.maxInput,
	}

	if s.trees != nil {
		return s.trees.Load(name, []byte(content), opts)
	}

	return treeio.Load(name, []byte(content), opts)
}

func (s *Server) handleDiff(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input DiffInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	output := render.FormatText
	if input.Output != "" {
		parsed, err := render.ParseFormat(input.Output)
		if err != nil {
			return errorResult(err)
		}

		output = parsed
	}

	src, err := s.load(input.SrcName, input.Src, input.Format, input.Language)
	if err != nil {
		return errorResult(fmt.Errorf("src: %w", err))
	}

	dst, err := s.load(input.DstName, input.Dst, input.Format, input.Language)
	if err != nil {
		return errorResult(fmt.Errorf("dst: %w", err))
	}

	result, err := s.engine.Diff(ctx, src, dst)
	if err != nil {
		return errorResult(err)
	}

	var buf bytes.Buffer

	err = render.Render(&buf, result, output, render.Options{MaxMappings: render.DefaultMaxMappings})
	if err != nil {
		return errorResult(err)
	}

	return textResult(buf.String(), render.NewResultJSON(result))
}

func (s *Server) handleParse(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ParseInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	output := treeio.FormatLisp
	if input.Output != "" {
		parsed, err := treeio.ParseFormat(input.Output)
		if err != nil {
			return errorResult(err)
		}

		output = parsed
	}

	parsed, err := s.load(input.Name, input.Content, input.Format, input.Language)
	if err != nil {
		return errorResult(err)
	}

	var buf bytes.Buffer

	err = treeio.Write(&buf, parsed, output)
	if err != nil {
		return errorResult(err)
	}

	return textResult(buf.String(), map[string]any{
		"nodes":  parsed.Records(),
		"size":   parsed.Size(),
		"height": parsed.Height(),
	})
}
