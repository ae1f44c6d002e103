package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/treediff/pkg/tree"
	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
)

// stdinPath selects standard input instead of a file.
const stdinPath = "-"

var (
	// ErrDirectoryPath indicates a file operation was attempted on a directory.
	ErrDirectoryPath = errors.New("path points to a directory")
	// ErrEmptyPath indicates a path argument was empty.
	ErrEmptyPath = errors.New("path is empty")
	// ErrPathContainsNUL indicates the path contains a NUL byte.
	ErrPathContainsNUL = errors.New("path contains NUL byte")
	// ErrStdinTwice indicates both inputs asked for standard input.
	ErrStdinTwice = errors.New("only one input can be read from stdin")
)

func safeReadFile(path string) (content []byte, resolvedPath string, err error) {
	resolvedPath, err = resolveUserFilePath(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolve path %q: %w", path, err)
	}

	//nolint:gosec // resolvedPath is normalized and existence/type checked in resolveUserFilePath.
	content, err = os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", resolvedPath, err)
	}

	return content, resolvedPath, nil
}

func resolveUserFilePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}

	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("%w: %q", ErrPathContainsNUL, path)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", absPath, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDirectoryPath, absPath)
	}

	return absPath, nil
}

// readInput returns the bytes behind path, or stdin for "-", together with
// the name used for format detection. stdin has no name.
func readInput(path string, stdin io.Reader, limit uint64) (content []byte, name string, err error) {
	if path != stdinPath {
		return safeReadFile(path)
	}

	reader := stdin
	if limit > 0 {
		// One extra byte lets Load report the overflow.
		reader = io.LimitReader(stdin, int64(limit)+1) //nolint:gosec // limit comes from a parsed size
	}

	content, err = io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read stdin: %w", err)
	}

	return content, "", nil
}

// loadTree reads and parses one input.
func loadTree(path string, stdin io.Reader, opts treeio.Options) (*tree.Tree, error) {
	content, name, err := readInput(path, stdin, opts.MaxInputSize)
	if err != nil {
		return nil, err
	}

	parsed, err := treeio.Load(name, content, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", displayPath(path), err)
	}

	return parsed, nil
}

func displayPath(path string) string {
	if path == stdinPath {
		return "<stdin>"
	}

	return path
}

// createOutput opens path for writing, or returns fallback when path is empty.
func createOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return fallback, func() error { return nil }, nil
	}

	if strings.ContainsRune(path, '\x00') {
		return nil, nil, fmt.Errorf("%w: %q", ErrPathContainsNUL, path)
	}

	//nolint:gosec // output path is chosen by the user on the command line.
	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}

	return file, file.Close, nil
}
