package storage

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Chapter name ordering. Directory listings come back lexically, which
// puts "第10章" before "第2章"; narrative order needs the number parsed
// out of whichever naming convention the project uses.

var (
	cnChapterRe  = regexp.MustCompile(`第([零一二两三四五六七八九十百千0-9]+)[章回节]`)
	latinRe      = regexp.MustCompile(`(?i)^ch(?:apter)?[\s_-]*(\d+)`)
	plainNumRe   = regexp.MustCompile(`^(\d+)`)
	prologueList = []string{"序章", "楔子", "序", "prologue"}
)

// Sort groups: prologue names first, numbered chapters next, everything
// else last.
const (
	groupPrologue = iota
	groupNumbered
	groupOther
)

type chapterKey struct {
	group int
	num   int
	name  string
}

// SortChapters orders chapter names in place into narrative order.
func SortChapters(chapters []string) {
	sort.SliceStable(chapters, func(i, j int) bool {
		return sortKeyLess(chapterSortKey(chapters[i]), chapterSortKey(chapters[j]))
	})
}

func sortKeyLess(a, b chapterKey) bool {
	if a.group != b.group {
		return a.group < b.group
	}
	if a.num != b.num {
		return a.num < b.num
	}
	return a.name < b.name
}

func chapterSortKey(name string) chapterKey {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	for _, p := range prologueList {
		if trimmed == p {
			return chapterKey{group: groupPrologue, name: name}
		}
	}

	if m := cnChapterRe.FindStringSubmatch(name); m != nil {
		return chapterKey{group: groupNumbered, num: chineseToNum(m[1]), name: name}
	}
	if m := latinRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return chapterKey{group: groupNumbered, num: n, name: name}
	}
	if m := plainNumRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return chapterKey{group: groupNumbered, num: n, name: name}
	}
	return chapterKey{group: groupOther, name: name}
}

var cnDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var cnUnits = map[rune]int{
	'十': 10, '百': 100, '千': 1000,
}

// chineseToNum parses a Chinese numeral like 十二 or 一百零五. Arabic
// digits pass through unchanged. Returns 0 for unparseable input.
func chineseToNum(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}

	total, current := 0, 0
	for _, r := range s {
		if d, ok := cnDigits[r]; ok {
			current = d
			continue
		}
		if unit, ok := cnUnits[r]; ok {
			if current == 0 {
				current = 1 // 十 alone means 10
			}
			total += current * unit
			current = 0
			continue
		}
		return 0
	}
	return total + current
}
