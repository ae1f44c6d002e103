package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
)

func TestResolveUserFilePath(t *testing.T) {
	t.Parallel()

	file := writeFile(t, "a.lisp", "(A)")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty", "  ", ErrEmptyPath},
		{"nul", "a\x00b", ErrPathContainsNUL},
		{"directory", t.TempDir(), ErrDirectoryPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := resolveUserFilePath(tt.path)
			require.ErrorIs(t, err, tt.want)
		})
	}

	resolved, err := resolveUserFilePath(file)
	require.NoError(t, err)
	assert.Equal(t, file, resolved)
}

func TestReadInput_StdinLimit(t *testing.T) {
	t.Parallel()

	content, name, err := readInput(stdinPath, strings.NewReader("(A (B))"), 3)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, "(A (", string(content))

	_, err = loadTree(stdinPath, strings.NewReader("(A (B))"), treeio.Options{MaxInputSize: 3})
	require.ErrorIs(t, err, treeio.ErrInputTooLarge)

	parsed, err := loadTree(stdinPath, strings.NewReader("(A (B))"), treeio.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.Size())
}
