//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDocumentsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001-123.xml"), []byte("<a/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001-456.xml"), []byte("<b/>"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	docs, err := readDocumentsDir(dir, "adv", 2023)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "0001-123", docs[0].DocumentID)
	assert.Equal(t, "adv", docs[0].FilingCategory)
	assert.Equal(t, 2023, docs[0].FilingYear)
	assert.Equal(t, []byte("<a/>"), docs[0].Content)
}

func TestReadDocumentsDir_Missing(t *testing.T) {
	_, err := readDocumentsDir(filepath.Join(t.TempDir(), "absent"), "adv", 2023)
	require.Error(t, err)
}
