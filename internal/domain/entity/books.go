// Package entity 定义领域实体
package entity

import (
	"regexp"
	"strings"
)

// 全部书号上限（含）
const MaxBookNumber = 14

// BookTitles 书号到正式书名的映射（0 为前传）
var BookTitles = map[int]string{
	0:  "New Spring",
	1:  "The Eye of the World",
	2:  "The Great Hunt",
	3:  "The Dragon Reborn",
	4:  "The Shadow Rising",
	5:  "The Fires of Heaven",
	6:  "Lord of Chaos",
	7:  "A Crown of Swords",
	8:  "The Path of Daggers",
	9:  "Winter's Heart",
	10: "Crossroads of Twilight",
	11: "Knife of Dreams",
	12: "The Gathering Storm",
	13: "Towers of Midnight",
	14: "A Memory of Light",
}

// titleVariations 维基页面中出现过的非正式书名写法
var titleVariations = map[string]int{
	"eye of the world":   1,
	"great hunt":         2,
	"dragon reborn":      3,
	"shadow rising":      4,
	"fires of heaven":    5,
	"path of daggers":    8,
	"winters heart":      9,
	"winter's heart":     9,
	"gathering storm":    12,
	"memory of light":    14,
	"the wheel of time":  1,
	"a new spring":       0,
	"new spring: the novel": 0,
}

var titleNormalizer = regexp.MustCompile(`\s+`)

// normalizeTitle 统一大小写与空白后用于查表
func normalizeTitle(title string) string {
	t := strings.TrimSpace(strings.ToLower(title))
	return titleNormalizer.ReplaceAllString(t, " ")
}

// titleToNumber 由 BookTitles 反向构建
var titleToNumber = func() map[string]int {
	m := make(map[string]int, len(BookTitles))
	for num, title := range BookTitles {
		m[normalizeTitle(title)] = num
	}
	return m
}()

// BookNumberForTitle 将书名（含常见变体）解析为书号
func BookNumberForTitle(title string) (int, bool) {
	key := normalizeTitle(title)
	if num, ok := titleToNumber[key]; ok {
		return num, true
	}
	if num, ok := titleVariations[key]; ok {
		return num, true
	}
	return 0, false
}

// BookTitle 返回书号对应的正式书名
func BookTitle(num int) (string, bool) {
	title, ok := BookTitles[num]
	return title, ok
}
