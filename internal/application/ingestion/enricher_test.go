package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragons-codex/internal/domain/entity"
)

func testIndex() *entity.MentionIndex {
	return &entity.MentionIndex{
		Characters: entity.AliasTable{
			"Rand al'Thor":   {"Rand", "Rand al'Thor", "the Dragon Reborn"},
			"Elayne Trakand": {"Elayne"},
		},
		Concepts: entity.AliasTable{
			"Aes Sedai": {"Aes Sedai", "Sedai"},
		},
		Magic: entity.AliasTable{
			"Saidin": {"saidin", "Saidin"},
		},
	}
}

func TestEnrichScenario(t *testing.T) {
	e := NewEnricher(testIndex())
	c := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, "Rand stood atop Dragonmount, channeling saidin.")

	e.Enrich(c)

	assert.Equal(t, []string{"Rand al'Thor"}, c.CharacterMentions)
	assert.Equal(t, []string{"Saidin"}, c.MagicMentions)
	assert.Empty(t, c.ConceptMentions)
}

func TestEnrichWholeWordOnly(t *testing.T) {
	e := NewEnricher(testIndex())
	c := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, "The strand of Randland lore.")

	e.Enrich(c)

	// "Rand" 不应命中 "strand" 或 "Randland" 的子串
	assert.Empty(t, c.CharacterMentions)
}

func TestEnrichCaseSensitive(t *testing.T) {
	e := NewEnricher(testIndex())
	c := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, "the rand of the river")

	e.Enrich(c)

	assert.Empty(t, c.CharacterMentions)
}

func TestEnrichLongestMatchWins(t *testing.T) {
	idx := &entity.MentionIndex{
		Characters: entity.AliasTable{
			"Lan Mandragoran": {"Lan"},
			"Lanfear":         {"Lanfear"},
		},
		Concepts: entity.AliasTable{},
		Magic:    entity.AliasTable{},
	}
	e := NewEnricher(idx)
	c := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, "Lanfear smiled.")

	e.Enrich(c)

	// 短别名 "Lan" 不得遮蔽更长的 "Lanfear"
	assert.Equal(t, []string{"Lanfear"}, c.CharacterMentions)
}

func TestEnrichDeterministicAndSorted(t *testing.T) {
	e := NewEnricher(testIndex())
	text := "Elayne watched Rand while the Aes Sedai waited."

	a := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, text)
	b := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, text)
	e.Enrich(a)
	e.Enrich(b)

	require.Equal(t, a.CharacterMentions, b.CharacterMentions)
	assert.Equal(t, []string{"Elayne Trakand", "Rand al'Thor"}, a.CharacterMentions)
	assert.Equal(t, []string{"Aes Sedai"}, a.ConceptMentions)
}

func TestEnrichCanonicalRecordedOnce(t *testing.T) {
	e := NewEnricher(testIndex())
	c := entity.NewBookChunk(1, 1, 0, "t", entity.SectionChapter, "Rand spoke. Rand listened. The Dragon Reborn rose.")

	e.Enrich(c)

	assert.Equal(t, []string{"Rand al'Thor"}, c.CharacterMentions)
}
