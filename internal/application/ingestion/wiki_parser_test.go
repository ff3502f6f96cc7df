package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragons-codex/internal/domain/entity"
)

const minorCharacterPage = `# Elyas Machera

A former Warder who can talk to wolves.

## In The Eye of the World

Elyas guides Perrin and Egwene across the plains.

## In The Shadow Rising

Elyas returns briefly.
`

const majorCharacterPage = `# Rand al'Thor

## Overview

The Dragon Reborn.

## Appearance

Tall, with reddish hair and grey eyes.

## Abilities

Can channel saidin.
`

func TestParseWikiMinorCharacterIsTemporal(t *testing.T) {
	doc, warnings, err := ParseWiki("elyas_machera.md", minorCharacterPage, entity.WikiCharacter)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, entity.WikiCharacter, doc.WikiType)
	assert.Equal(t, "Elyas Machera", doc.Title)
	require.Len(t, doc.Sections, 2)

	require.NotNil(t, doc.Sections[0].Ordinal)
	assert.Equal(t, 1, *doc.Sections[0].Ordinal)
	require.NotNil(t, doc.Sections[1].Ordinal)
	assert.Equal(t, 4, *doc.Sections[1].Ordinal)
}

func TestParseWikiMajorCharacterHasNoOrdinals(t *testing.T) {
	doc, warnings, err := ParseWiki("rand_althor.md", majorCharacterPage, entity.WikiCharacter)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, doc.Sections, 3)
	for _, s := range doc.Sections {
		assert.Nil(t, s.Ordinal)
		assert.Equal(t, entity.SectionCharacter, s.Type)
	}
}

func TestParseWikiUnknownTopicalHeadingWarns(t *testing.T) {
	page := "# Someone\n\n## Oddly Named Heading\n\ntext\n"
	doc, warnings, err := ParseWiki("someone.md", page, entity.WikiCharacter)
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	// 未知标题保留为 Section，不静默丢弃
	assert.Equal(t, "Oddly Named Heading", doc.Sections[0].Title)
	require.Len(t, warnings, 1)
}

func TestParseWikiChapterSummaryInheritsBookNumber(t *testing.T) {
	page := "# The Great Hunt Chapter Summaries\n\n## Chapter 1\n\nsummary text\n\n## Chapter 2\n\nmore summary\n"
	doc, _, err := ParseWiki("tgh_summaries.md", page, entity.WikiChapterSummary)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 2)
	for _, s := range doc.Sections {
		assert.Equal(t, entity.SectionChapterSummary, s.Type)
		require.NotNil(t, s.Ordinal)
		assert.Equal(t, 2, *s.Ordinal)
	}
}

func TestParseWikiChronologyResolvesHeadings(t *testing.T) {
	page := "# Timeline\n\n## The Eye of the World\n\nevents\n\n## Miscellanea\n\nother\n"
	doc, _, err := ParseWiki("timeline.md", page, entity.WikiChronology)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 2)
	require.NotNil(t, doc.Sections[0].Ordinal)
	assert.Equal(t, 1, *doc.Sections[0].Ordinal)
	assert.Nil(t, doc.Sections[1].Ordinal)
}

func TestParseWikiNoHeadingsFails(t *testing.T) {
	_, _, err := ParseWiki("empty.md", "just text, no headings\n", entity.WikiConcept)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseWikiSubheadingsMergeIntoSection(t *testing.T) {
	page := "# Topic\n\n## Overview\n\nintro\n\n### Detail\n\nnested text\n"
	doc, _, err := ParseWiki("topic.md", page, entity.WikiConcept)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	assert.Contains(t, doc.Sections[0].Text, "### Detail")
	assert.Contains(t, doc.Sections[0].Text, "nested text")
}
