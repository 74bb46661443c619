package oracle

import (
	"fmt"
	"strings"

	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// TagExtractionPrompt generates the prompt for extracting semantic tags
// from event content. knownTags is a sample of tags already in the
// registry, offered as vocabulary anchors.
func TagExtractionPrompt(text string, knownTags []string, maxTags int) string {
	return fmt.Sprintf(`You are a content analysis system. Extract the key semantic tags from the user's life-experience content.

TASK: analyze the content below and extract up to %d tags that best capture its core meaning.

CONTENT: %q

Guidelines:
- Tags are short words or phrases (behaviors, emotions, scenes, skills, values)
- If an image is attached, fold its content into the analysis
- Prefer reusable concept tags over one-off specific nouns
- You may reuse, but are not limited to, these known tags: %s

Return ONLY the tags, comma-separated, no other text.

Example: learning, achievement, teamwork, food, celebration`, maxTags, text, strings.Join(knownTags, ", "))
}

// ScoringPrompt generates the prompt for scoring an event against one
// dimension. The dimension's own guideline text is passed through
// verbatim; the core does not interpret it.
func ScoringPrompt(dim registry.Dimension, text string, priorValue int) string {
	return fmt.Sprintf(`You are the trait-matrix scoring system. Score the user's life-experience content on one dimension, 0-255.

DIMENSION ID: %s
DIMENSION NAME: %s
DEFINITION: %s
SCORING GUIDELINE: %s

CONTENT: %q

Rules:
1. 0 = unrelated / negative; 128 = moderate; 255 = strongest expression
2. The user's current score on this dimension is %d
3. If an image is attached, fold its content into the score
4. Return ONLY an integer 0-255, no other text`,
		dim.ID, dim.Name, dim.Definition, dim.ScoringGuideline, text, priorValue)
}

// KnownTagSample collects up to n canonical tags across the registry,
// in deterministic order, for the extraction prompt.
func KnownTagSample(reg *registry.Registry, n int) []string {
	seen := make(map[string]bool)
	var sample []string
	for _, dim := range reg.All() {
		for _, tag := range dim.CanonicalTags {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			sample = append(sample, tag)
			if len(sample) >= n {
				return sample
			}
		}
	}
	return sample
}
