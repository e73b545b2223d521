package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arc-language/elfgen/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSectionDefaultsEmptyPathIsNoop(t *testing.T) {
	before := object.DefaultSectionTable[".text"]
	require.NoError(t, LoadSectionDefaults(""))
	assert.Equal(t, before, object.DefaultSectionTable[".text"])
}

func TestLoadSectionDefaultsMissingFileIsNoop(t *testing.T) {
	require.NoError(t, LoadSectionDefaults(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestLoadSectionDefaultsOverridesAlignment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sections.yaml")
	writeFile(t, path, "sections:\n  .text:\n    align: 32\n")

	require.NoError(t, LoadSectionDefaults(path))
	assert.EqualValues(t, 32, object.DefaultSectionTable[".text"].Align)
	// Unspecified fields keep their compiled-in values.
	assert.Equal(t, object.FlagAlloc|object.FlagExecinstr, object.DefaultSectionTable[".text"].Flags)
}

func TestLoadSectionDefaultsAddsNewSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sections.yaml")
	writeFile(t, path, "sections:\n  .init_array:\n    type: progbits\n    flags: [alloc, write]\n    align: 4\n")

	require.NoError(t, LoadSectionDefaults(path))
	def := object.DefaultSectionTable[".init_array"]
	assert.Equal(t, object.SectionProgbits, def.Type)
	assert.Equal(t, object.FlagAlloc|object.FlagWrite, def.Flags)
	assert.EqualValues(t, 4, def.Align)
}

func TestLoadSectionDefaultsRejectsUnknownFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sections.yaml")
	writeFile(t, path, "sections:\n  .text:\n    flags: [bogus]\n")

	err := LoadSectionDefaults(path)
	require.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
