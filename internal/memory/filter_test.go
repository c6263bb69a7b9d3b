package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCharacterFilter(t *testing.T) {
	f := BuildCharacterFilter("a", "", "b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, f.Singles)
	assert.Equal(t, [][2]string{{"a", "b"}, {"a", "c"}, {"b", "c"}}, f.Pairs)

	assert.True(t, f.Matches([]string{"b"}))
	assert.True(t, f.Matches([]string{"c", "a"}))
	assert.False(t, f.Matches([]string{"d"}))
	assert.False(t, f.Matches([]string{"a", "d"}))
	assert.False(t, f.Matches([]string{"a", "b", "c"}))
}

func TestCharacterFilter_String(t *testing.T) {
	assert.Equal(t, "", BuildCharacterFilter().String())
	assert.Equal(t,
		`(charactersCount = 1 AND characterIds IN ["a", "b"]) OR (charactersCount = 2 AND characterIds = "a" AND characterIds = "b")`,
		BuildCharacterFilter("a", "b").String())
	assert.Equal(t, `(charactersCount = 1 AND characterIds IN ["solo"])`, BuildCharacterFilter("solo").String())
}
