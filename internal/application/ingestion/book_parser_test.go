package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragons-codex/internal/domain/entity"
)

const sampleBook = `PROLOGUE

Dragonmount

The palace still shook occasionally as the earth rumbled.

CHAPTER 1

An Empty Road

The Wheel of Time turns, and Ages come and pass.

CHAPTER 2

Strangers

The peddler's wagon rolled into town.

EPILOGUE

After

The wind rose above the mountains.

GLOSSARY

Aes Sedai (EYEZ seh-DEYE):
Wielders of the One Power.

Saidin (sah-DEEN):
The male half of the True Source.
`

func TestParseBookSections(t *testing.T) {
	doc, warnings, err := ParseBook("01-The_Eye_of_the_World.txt", sampleBook)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, entity.SourceBook, doc.SourceType)
	assert.Equal(t, 1, doc.BookNumber)
	assert.Equal(t, "The Eye of the World", doc.Title)

	require.Len(t, doc.Sections, 4)

	assert.Equal(t, entity.SectionPrologue, doc.Sections[0].Type)
	assert.Equal(t, "Dragonmount", doc.Sections[0].Title)
	assert.Equal(t, 0, *doc.Sections[0].Ordinal)

	assert.Equal(t, entity.SectionChapter, doc.Sections[1].Type)
	assert.Equal(t, "An Empty Road", doc.Sections[1].Title)
	assert.Equal(t, 1, *doc.Sections[1].Ordinal)

	assert.Equal(t, 2, *doc.Sections[2].Ordinal)

	// 尾声序号 = 最大章号 + 1
	assert.Equal(t, entity.SectionEpilogue, doc.Sections[3].Type)
	assert.Equal(t, 3, *doc.Sections[3].Ordinal)
}

func TestParseBookGlossary(t *testing.T) {
	doc, _, err := ParseBook("01-The_Eye_of_the_World.txt", sampleBook)
	require.NoError(t, err)

	require.Len(t, doc.Glossary, 2)
	assert.Equal(t, "Aes Sedai", doc.Glossary[0].Term)
	assert.Equal(t, "EYEZ seh-DEYE", doc.Glossary[0].Pronunciation)
	assert.Equal(t, "Wielders of the One Power.", doc.Glossary[0].Description)
	assert.Equal(t, "Saidin", doc.Glossary[1].Term)
}

func TestParseBookChapterWithoutNumber(t *testing.T) {
	raw := "CHAPTER\n\nFirst\n\ntext one\n\nCHAPTER\n\nSecond\n\ntext two\n"
	doc, _, err := ParseBook("02-The_Great_Hunt.txt", raw)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 2)
	assert.Equal(t, 1, *doc.Sections[0].Ordinal)
	assert.Equal(t, 2, *doc.Sections[1].Ordinal)
}

func TestParseBookBadFilename(t *testing.T) {
	_, _, err := ParseBook("notes.txt", sampleBook)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseBookChapterWithoutTitle(t *testing.T) {
	_, _, err := ParseBook("01-The_Eye_of_the_World.txt", "CHAPTER 1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no title")
}

func TestParseBookTitlelessChapterDoesNotSwallowNext(t *testing.T) {
	// CHAPTER 1 缺标题时不得把 CHAPTER 2 标记当作标题吞掉
	raw := "CHAPTER 1\n\nCHAPTER 2\nThe Real Title\n\nBody of chapter two.\n"
	_, _, err := ParseBook("01-The_Eye_of_the_World.txt", raw)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "no title")
}

func TestParseBookTitlelessPrologueBeforeGlossaryFails(t *testing.T) {
	raw := "PROLOGUE\n\nGLOSSARY\n\nTerm (term):\nDescription.\n"
	_, _, err := ParseBook("01-The_Eye_of_the_World.txt", raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no title")
}

func TestParseBookNoMarkers(t *testing.T) {
	_, _, err := ParseBook("01-The_Eye_of_the_World.txt", "just some prose\n")
	require.Error(t, err)
}

func TestParseBookLeadingTextWarns(t *testing.T) {
	raw := "Copyright notice.\n\n" + sampleBook
	doc, warnings, err := ParseBook("01-The_Eye_of_the_World.txt", raw)
	require.NoError(t, err)
	require.Len(t, doc.Sections, 4)
	require.NotEmpty(t, warnings)
	assert.True(t, strings.Contains(warnings[0].Reason, "before first structural marker"))
}
