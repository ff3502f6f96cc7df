package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookChunkID(t *testing.T) {
	c := NewBookChunk(1, 3, 7, "The Peddler", SectionChapter, "some text")

	assert.Equal(t, "book_01_ch_03_chunk_007", c.ChunkID)
	assert.Equal(t, SourceBook, c.Source)
	require.NotNil(t, c.TemporalOrder)
	assert.Equal(t, 1, *c.TemporalOrder)
	require.NotNil(t, c.Book)
	assert.Equal(t, "The Eye of the World", c.Book.BookTitle)
	assert.Nil(t, c.Wiki)
}

func TestBookChunkIDDeterministic(t *testing.T) {
	a := NewBookChunk(4, 10, 2, "Title", SectionChapter, "identical text")
	b := NewBookChunk(4, 10, 2, "Title", SectionChapter, "identical text")

	assert.Equal(t, a.ChunkID, b.ChunkID)
	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestNewGlossaryChunkHasNoTemporalOrder(t *testing.T) {
	c := NewGlossaryChunk(2, 5, GlossaryEntry{
		Term:          "Aes Sedai",
		Pronunciation: "EYEZ seh-DEYE",
		Description:   "Wielders of the One Power.",
	})

	assert.Nil(t, c.TemporalOrder)
	assert.Equal(t, "book_02_glossary_005", c.ChunkID)
	assert.Contains(t, c.Text, "Aes Sedai")
	assert.Contains(t, c.Text, "EYEZ seh-DEYE")
	assert.Equal(t, "Aes Sedai", c.Book.GlossaryTerm)
	// 术语条目不是普通章节，来源字段不得声称章节谱系
	assert.Equal(t, SectionGlossary, c.Book.ChapterType)
}

func TestNewWikiChunk(t *testing.T) {
	ord := 3
	c := NewWikiChunk("Elyas Machera", 1, 0, WikiCharacter, "Elyas Machera", "In The Dragon Reborn", "body", &ord)

	assert.Equal(t, "wiki_elyas_machera_sec_01_chunk_000", c.ChunkID)
	require.NotNil(t, c.TemporalOrder)
	assert.Equal(t, 3, *c.TemporalOrder)
	assert.Equal(t, "Elyas Machera", c.Wiki.CharacterName)
}

func TestSetMentionsSortsAlphabetically(t *testing.T) {
	c := NewBookChunk(1, 1, 0, "t", SectionChapter, "x")
	c.SetMentions(
		[]string{"Rand al'Thor", "Egwene al'Vere", "Moiraine Damodred"},
		nil,
		[]string{"Saidin", "Saidar"},
	)

	assert.Equal(t, []string{"Egwene al'Vere", "Moiraine Damodred", "Rand al'Thor"}, c.CharacterMentions)
	assert.Equal(t, []string{}, c.ConceptMentions)
	assert.Equal(t, []string{"Saidar", "Saidin"}, c.MagicMentions)
}

func TestLineageKeyGroupsByChapter(t *testing.T) {
	a := NewBookChunk(1, 3, 0, "t", SectionChapter, "a")
	b := NewBookChunk(1, 3, 1, "t", SectionChapter, "b")
	other := NewBookChunk(1, 4, 0, "t", SectionChapter, "c")

	assert.Equal(t, a.LineageKey(), b.LineageKey())
	assert.NotEqual(t, a.LineageKey(), other.LineageKey())
	assert.Less(t, a.OrderInLineage(), b.OrderInLineage())
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "rand_al_thor", Slugify("Rand al'Thor"))
	assert.Equal(t, "the_eye_of_the_world", Slugify("  The Eye of the World  "))
}

func TestBookNumberForTitle(t *testing.T) {
	num, ok := BookNumberForTitle("The Great Hunt")
	require.True(t, ok)
	assert.Equal(t, 2, num)

	num, ok = BookNumberForTitle("winters heart")
	require.True(t, ok)
	assert.Equal(t, 9, num)

	_, ok = BookNumberForTitle("Not A Real Book")
	assert.False(t, ok)
}
