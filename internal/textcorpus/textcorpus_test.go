package textcorpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomShort(t *testing.T) {
	p := NewSeeded(42)
	text, err := p.Random(false)
	assert.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Contains(t, defaultCorpus.Texts, text)
}

func TestRandomLongFallsBackWhenEmpty(t *testing.T) {
	p := NewSeeded(1)
	p.load(corpusFile{Texts: []string{"only short"}})
	text, err := p.Random(true)
	assert.NoError(t, err)
	assert.Equal(t, "only short", text)
}

func TestRandomEmptyCorpus(t *testing.T) {
	p := NewSeeded(1)
	p.load(corpusFile{})
	_, err := p.Random(false)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}
