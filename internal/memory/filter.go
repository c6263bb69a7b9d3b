package memory

import (
	"fmt"
	"sort"
	"strings"
)

// CharacterFilter - фильтр профилей в виде OR из AND-условий:
// профиль одного персонажа из Singles или профиль отношений одной из пар Pairs.
type CharacterFilter struct {
	Singles []string
	Pairs   [][2]string
}

// BuildCharacterFilter строит фильтр по всем неупорядоченным парам идентификаторов.
// Повторы и пустые значения отбрасываются.
func BuildCharacterFilter(ids ...string) CharacterFilter {
	seen := make(map[string]struct{}, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	f := CharacterFilter{Singles: uniq}
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			f.Pairs = append(f.Pairs, [2]string{uniq[i], uniq[j]})
		}
	}
	return f
}

func (f CharacterFilter) Empty() bool {
	return len(f.Singles) == 0
}

// Matches сообщает, проходит ли набор персонажей записи через фильтр.
func (f CharacterFilter) Matches(characterIDs []string) bool {
	switch len(characterIDs) {
	case 1:
		for _, id := range f.Singles {
			if id == characterIDs[0] {
				return true
			}
		}
	case 2:
		for _, p := range f.Pairs {
			if (p[0] == characterIDs[0] && p[1] == characterIDs[1]) ||
				(p[0] == characterIDs[1] && p[1] == characterIDs[0]) {
				return true
			}
		}
	}
	return false
}

// String возвращает выражение фильтра для логов.
func (f CharacterFilter) String() string {
	if f.Empty() {
		return ""
	}
	quoted := make([]string, len(f.Singles))
	for i, id := range f.Singles {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	parts := []string{fmt.Sprintf("(charactersCount = 1 AND characterIds IN [%s])", strings.Join(quoted, ", "))}
	pairs := append([][2]string(nil), f.Pairs...)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("(charactersCount = 2 AND characterIds = %q AND characterIds = %q)", p[0], p[1]))
	}
	return strings.Join(parts, " OR ")
}
