package agents

import (
	"strings"
	"sync"
	"unicode"

	"reelgate/internal/tools/builtin"
)

// TaskDescriptor is what the selector sees of an incoming run.
type TaskDescriptor struct {
	Prompt    string
	ProjectID string
	SegmentID string
}

// Catalog holds the current set of definitions. It is safe for concurrent
// use; Replace swaps the whole set atomically.
type Catalog struct {
	mu          sync.RWMutex
	definitions []Definition
	defaultName AgentID
}

// NewCatalog creates a catalog from a validated file.
func NewCatalog(f *File) *Catalog {
	c := &Catalog{}
	c.Replace(f)
	return c
}

// DefaultCatalog returns a catalog of the built-in specialists.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultFile())
}

// Replace swaps in a new validated definition set.
func (c *Catalog) Replace(f *File) {
	defs := make([]Definition, len(f.Agents))
	for i, d := range f.Agents {
		defs[i] = d.Clone()
	}

	c.mu.Lock()
	c.definitions = defs
	c.defaultName = f.Default
	c.mu.Unlock()
}

// Default returns the fallback specialist name.
func (c *Catalog) Default() AgentID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultName
}

// Get returns a snapshot of the named definition.
func (c *Catalog) Get(name AgentID) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.definitions {
		if d.Name == name {
			return d.Clone(), true
		}
	}
	return Definition{}, false
}

// List returns snapshots of all definitions in file order.
func (c *Catalog) List() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, len(c.definitions))
	for i, d := range c.definitions {
		out[i] = d.Clone()
	}
	return out
}

// SelectSpecialist picks the definition with the most keyword hits in the
// prompt. Ties go to the earlier definition; no hits selects the default.
func (c *Catalog) SelectSpecialist(task TaskDescriptor) AgentID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectLocked(task)
}

// Select picks a specialist like SelectSpecialist and returns a snapshot of
// its definition from the same definition set, so a concurrent Replace
// cannot drop the choice between selecting and reading it.
func (c *Catalog) Select(task TaskDescriptor) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := c.selectLocked(task)
	for _, d := range c.definitions {
		if d.Name == name {
			return d.Clone(), true
		}
	}
	return Definition{}, false
}

func (c *Catalog) selectLocked(task TaskDescriptor) AgentID {
	words := tokenize(task.Prompt)
	lower := strings.ToLower(task.Prompt)

	best, bestScore := c.defaultName, 0
	for _, d := range c.definitions {
		score := 0
		for _, kw := range d.Keywords {
			if matches(strings.ToLower(kw), words, lower) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = d.Name, score
		}
	}
	return best
}

// matches treats single-word keywords as whole words, so "ad" does not hit
// "shadow". Phrases match as substrings.
func matches(kw string, words map[string]bool, lower string) bool {
	if kw == "" {
		return false
	}
	if strings.ContainsFunc(kw, unicode.IsSpace) {
		return strings.Contains(lower, kw)
	}
	return words[kw]
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return words
}

// DefaultFile returns the built-in specialist definitions.
func DefaultFile() *File {
	return &File{
		Version: "1.0.0",
		Default: Producer,
		Agents: []Definition{
			{
				Name:        Researcher,
				Description: "Market and audience research",
				Instructions: "You research products for short video ads. Find the category, " +
					"competitors, audience and current trends, then summarise what matters for the creative.",
				Tools:    []string{builtin.WebResearch},
				Keywords: []string{"research", "market", "competitor", "competitors", "audience", "trend", "trends"},
			},
			{
				Name:        Scriptwriter,
				Description: "Concepts and segment scripts",
				Instructions: "You write ad concepts and split them into numbered segments, " +
					"one shot each, with a visual prompt per segment.",
				Tools:    []string{builtin.GenerateConcept, builtin.SegmentScript},
				Keywords: []string{"script", "concept", "story", "storyboard", "scene", "scenes", "copy", "hook"},
			},
			{
				Name:        ImageProducer,
				Description: "Segment stills",
				Instructions: "You generate the still image for each segment. " +
					"Use the batch tool for a whole project and the single tool for one segment.",
				Tools:    []string{builtin.GenerateImage, builtin.BatchGenerateImages},
				Keywords: []string{"image", "images", "still", "stills", "photo", "picture", "thumbnail", "keyframe"},
			},
			{
				Name:        VideoProducer,
				Description: "Segment clips",
				Instructions: "You animate segments into video clips. " +
					"Use the batch tool for a whole project and the single tool for one segment.",
				Tools:    []string{builtin.GenerateVideo, builtin.BatchGenerateVideos},
				Keywords: []string{"video", "videos", "clip", "clips", "animate", "footage", "motion"},
			},
			{
				Name:        Producer,
				Description: "End-to-end ad production",
				Instructions: "You produce a short video ad end to end: research, concept, segments, " +
					"then stills and clips. Generation steps need the user's approval; explain what you are about to generate.",
				Tools:    builtin.Names(),
				Keywords: []string{"ad", "ads", "advert", "commercial", "campaign", "produce", "promo"},
			},
		},
	}
}
