// Package textcorpus is the read-only race-passage provider (spec.md
// §2, §6). It loads a static JSON corpus shaped {texts:[...],
// longTexts:[...]} and hands back a random entry per race.
package textcorpus

import (
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"sync"
	"time"
)

// ErrEmptyCorpus is returned when the requested bucket (short or long) has
// no entries to draw from.
var ErrEmptyCorpus = errors.New("textcorpus: no passages available")

// corpusFile mirrors the on-disk JSON shape.
type corpusFile struct {
	Texts     []string `json:"texts"`
	LongTexts []string `json:"longTexts"`
}

// Provider hands out random race passages. Read-only after construction;
// safe for concurrent use.
type Provider struct {
	mu    sync.RWMutex
	short []string
	long  []string
	rng   *rand.Rand
}

// defaultCorpus is the built-in fallback used when no file is loaded,
// ensuring the server is usable without external assets.
var defaultCorpus = corpusFile{
	Texts: []string{
		"The quick brown fox jumps over the lazy dog.",
		"Pack my box with five dozen liquor jugs.",
		"Sphinx of black quartz, judge my vow.",
		"How vexingly quick daft zebras jump.",
		"The five boxing wizards jump quickly.",
	},
	LongTexts: []string{
		"In the depths of winter, I finally learned that within me there lay an invincible summer, and that makes me happy, for it says that no matter how hard the world pushes against me, within me there's something stronger, something better, pushing right back.",
		"It was the best of times, it was the worst of times, it was the age of wisdom, it was the age of foolishness, it was the epoch of belief, it was the epoch of incredulity, it was the season of Light, it was the season of Darkness.",
		"Far out in the uncharted backwaters of the unfashionable end of the western spiral arm of the Galaxy lies a small unregarded yellow sun, and orbiting this at a distance of roughly ninety-two million miles is an utterly insignificant little blue-green planet.",
	},
}

// New returns a Provider seeded with the built-in default corpus.
func New() *Provider {
	p := &Provider{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	p.load(defaultCorpus)
	return p
}

// NewSeeded returns a Provider with a deterministic RNG, for tests that
// need reproducible passage selection.
func NewSeeded(seed int64) *Provider {
	p := &Provider{rng: rand.New(rand.NewSource(seed))}
	p.load(defaultCorpus)
	return p
}

// NewFromFile loads the corpus from a JSON file at path, falling back to
// the built-in default on any read/parse error (the caller decides
// whether to log or surface that error; the server stays usable either
// way since race selection never blocks on corpus availability).
func NewFromFile(path string) (*Provider, error) {
	p := &Provider{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	data, err := os.ReadFile(path)
	if err != nil {
		p.load(defaultCorpus)
		return p, err
	}
	var cf corpusFile
	if err := json.Unmarshal(data, &cf); err != nil {
		p.load(defaultCorpus)
		return p, err
	}
	p.load(cf)
	return p, nil
}

func (p *Provider) load(cf corpusFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.short = append([]string(nil), cf.Texts...)
	p.long = append([]string(nil), cf.LongTexts...)
}

// Random returns a random passage. If long is true and the long bucket is
// non-empty, a long passage is returned; otherwise a short one.
func (p *Provider) Random(long bool) (string, error) {
	// Exclusive lock: *rand.Rand is not safe for concurrent use.
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.short
	if long && len(p.long) > 0 {
		bucket = p.long
	}
	if len(bucket) == 0 {
		return "", ErrEmptyCorpus
	}
	return bucket[p.rng.Intn(len(bucket))], nil
}
