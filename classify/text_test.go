package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodePattern_Variants(t *testing.T) {
	re := codePattern("CS101")
	tests := []struct {
		text string
		want int
	}{
		{"CS101", 1},
		{"see cs101 and CS 101", 2},
		{"CS-101, cs_101.", 2},
		{"CS1010", 0},
		{"XCS101", 0},
		{"CS  101", 0},
		{"(CS101)", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, countWholeWord(tt.text, re))
		})
	}
	assert.Nil(t, codePattern("--"))
}

func TestNormalizeFileName(t *testing.T) {
	assert.Equal(t, "CS101 notes v2", normalizeFileName("dir/CS101-notes.v2.pdf"))
	assert.Equal(t, "cs101 notes", normalizeFileName("cs101_notes.pdf"))
	assert.Equal(t, "week 3", normalizeFileName(`C:\files\week_3.txt`))
}

func TestSignificantWords(t *testing.T) {
	assert.Equal(t, []string{"intro", "computer", "science"}, significantWords("Intro to Computer Science"))
	assert.Equal(t, []string{"calculus"}, significantWords("Calculus II"))
	assert.Empty(t, significantWords("A to Z"))
}

func TestInferKeywords(t *testing.T) {
	assert.Contains(t, inferKeywords("CS101", "Whatever"), "algorithm")
	assert.Contains(t, inferKeywords("MA201", "Calculus II"), "integral")
	assert.Contains(t, inferKeywords("XX100", "Organic Chemistry"), "molecule")
	assert.Contains(t, inferKeywords("", "Intro to Computer Science"), "function")
	assert.Nil(t, inferKeywords("ZZ9", "Underwater Basket Weaving"))
}

func TestContainsWholeWord(t *testing.T) {
	assert.True(t, containsWholeWord("the Computer lab", "computer"))
	assert.False(t, containsWholeWord("computers everywhere", "computer"))
	assert.True(t, containsWholeWord("data\n  structure", "data structure"))
	assert.True(t, containsWholeWord("the \u201ccomputer\u201d lab", "computer"))
	assert.True(t, containsWholeWord("computer\u2014science", "computer"))
	assert.False(t, containsWholeWord("\u00e9computer", "computer"))
	assert.False(t, containsWholeWord("computer\u00e9", "computer"))
}
