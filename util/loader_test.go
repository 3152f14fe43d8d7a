package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "c.webp", "notes.txt", "d.tiff"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "e.png"), 0o755))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 4)

	var names []string
	for _, image := range images {
		names = append(names, filepath.Base(image.Path))
		assert.Equal(t, filepath.Base(image.Path), string(image.Data))
	}
	assert.Equal(t, []string{"a.JPG", "b.png", "c.webp", "d.tiff"}, names)
}

func TestLoadDirectoryImagesMissing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("leaf.JPEG"))
	assert.True(t, IsImageFile("scan.tif"))
	assert.False(t, IsImageFile("model.onnx"))
	assert.False(t, IsImageFile("noext"))
}
