package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMentionFiles(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"characters.json": `{"Rand al'Thor": ["Rand", "the Dragon Reborn"]}`,
		"concepts.json":   `{"Aes Sedai": ["Sedai"]}`,
		"magic.json":      `{"Saidin": ["saidin"]}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestLoadMentionIndex(t *testing.T) {
	dir := t.TempDir()
	writeMentionFiles(t, dir)

	idx, err := LoadMentionIndex(dir)
	require.NoError(t, err)

	// 规范名自身被追加为别名
	assert.ElementsMatch(t, []string{"Rand", "the Dragon Reborn", "Rand al'Thor"}, idx.Characters["Rand al'Thor"])
	assert.ElementsMatch(t, []string{"Sedai", "Aes Sedai"}, idx.Concepts["Aes Sedai"])
	assert.ElementsMatch(t, []string{"saidin", "Saidin"}, idx.Magic["Saidin"])
}

func TestLoadMentionIndexMissingFile(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMentionIndex(dir)
	assert.Error(t, err)
}

func TestTableByCategory(t *testing.T) {
	dir := t.TempDir()
	writeMentionFiles(t, dir)

	idx, err := LoadMentionIndex(dir)
	require.NoError(t, err)

	assert.NotNil(t, idx.Table(MentionCharacter))
	assert.NotNil(t, idx.Table(MentionConcept))
	assert.NotNil(t, idx.Table(MentionMagic))
	assert.Nil(t, idx.Table(MentionCategory("bogus")))
}
