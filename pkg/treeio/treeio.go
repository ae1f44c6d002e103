// Package treeio reads and writes trees in the document formats understood by
// treediff: nested JSON and YAML, flat node records, s-expressions and source
// code parsed with tree-sitter.
package treeio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Sentinel errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrInputTooLarge     = errors.New("input too large")
	ErrSchemaViolation   = errors.New("document does not match the tree schema")
	ErrSyntax            = errors.New("syntax error")
)

// Format names a document format.
type Format string

// Supported formats.
const (
	FormatAuto   Format = ""
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatFlat   Format = "flat"
	FormatLisp   Format = "lisp"
	FormatSource Format = "source"
)

// Formats lists the formats that can be requested explicitly.
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatFlat, FormatLisp, FormatSource}
}

// ParseFormat resolves a user supplied format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "flat", "records":
		return FormatFlat, nil
	case "lisp", "sexp", "sexpr":
		return FormatLisp, nil
	case "source", "code":
		return FormatSource, nil
	default:
		return FormatAuto, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Options control loading.
type Options struct {
	// Format forces a format; FormatAuto detects it from the name and content.
	Format Format
	// Language forces the tree-sitter grammar for source input.
	Language string
	// MaxInputSize refuses inputs larger than this many bytes. Zero disables the check.
	MaxInputSize uint64
}

// Load builds a tree from content. The name is used for format and language
// detection; "-" or an empty name means standard input.
func Load(name string, content []byte, opts Options) (*tree.Tree, error) {
	if opts.MaxInputSize > 0 && uint64(len(content)) > opts.MaxInputSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrInputTooLarge, displayName(name), len(content), opts.MaxInputSize)
	}

	format := opts.Format
	if format == FormatAuto {
		format = DetectFormat(name, content)
	}

	switch format {
	case FormatJSON:
		return DecodeJSON(content)
	case FormatYAML:
		return DecodeYAML(content)
	case FormatFlat:
		return decodeFlatAny(content)
	case FormatLisp:
		return ParseLisp(string(content))
	case FormatSource:
		return ParseSource(name, content, opts.Language)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DetectFormat guesses the format from the file extension, then from the
// first significant byte of content. Unknown extensions are treated as source.
func DetectFormat(name string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".lisp", ".sexp", ".sexpr":
		return FormatLisp
	}

	if name != "" && name != "-" {
		return FormatSource
	}

	trimmed := strings.TrimSpace(string(content))

	switch {
	case strings.HasPrefix(trimmed, "{"):
		return FormatJSON
	case strings.HasPrefix(trimmed, "("), strings.HasPrefix(trimmed, ";"):
		return FormatLisp
	default:
		return FormatYAML
	}
}

// decodeFlatAny accepts flat records in either JSON or YAML.
func decodeFlatAny(content []byte) (*tree.Tree, error) {
	if strings.HasPrefix(strings.TrimSpace(string(content)), "{") {
		return DecodeJSON(content)
	}

	return DecodeYAML(content)
}

func displayName(name string) string {
	if name == "" || name == "-" {
		return "stdin"
	}

	return name
}
