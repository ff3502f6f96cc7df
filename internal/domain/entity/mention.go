package entity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MentionCategory 提及类别
type MentionCategory string

const (
	MentionCharacter MentionCategory = "character"
	MentionConcept   MentionCategory = "concept"
	MentionMagic     MentionCategory = "magic"
)

// AliasTable 规范名到别名集合的映射
type AliasTable map[string][]string

// MentionIndex 三类实体的别名索引
// 启动时加载一次，之后只读，可被所有 worker 共享
type MentionIndex struct {
	Characters AliasTable `json:"characters"`
	Concepts   AliasTable `json:"concepts"`
	Magic      AliasTable `json:"magic"`
}

// Table 按类别取对应别名表
func (m *MentionIndex) Table(cat MentionCategory) AliasTable {
	switch cat {
	case MentionCharacter:
		return m.Characters
	case MentionConcept:
		return m.Concepts
	case MentionMagic:
		return m.Magic
	default:
		return nil
	}
}

// mentionIndexFiles 各类别对应的索引文件名
var mentionIndexFiles = map[MentionCategory]string{
	MentionCharacter: "characters.json",
	MentionConcept:   "concepts.json",
	MentionMagic:     "magic.json",
}

// LoadMentionIndex 从目录加载三份别名索引
// 文件格式: { "规范名": ["别名1", "别名2"], ... }，规范名自身也参与匹配
func LoadMentionIndex(dir string) (*MentionIndex, error) {
	idx := &MentionIndex{
		Characters: AliasTable{},
		Concepts:   AliasTable{},
		Magic:      AliasTable{},
	}
	for cat, name := range mentionIndexFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read mention index %s: %w", path, err)
		}
		table := AliasTable{}
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("decode mention index %s: %w", path, err)
		}
		// 规范名自身始终作为一个别名
		for canonical, aliases := range table {
			table[canonical] = appendUnique(aliases, canonical)
		}
		switch cat {
		case MentionCharacter:
			idx.Characters = table
		case MentionConcept:
			idx.Concepts = table
		case MentionMagic:
			idx.Magic = table
		}
	}
	return idx, nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
