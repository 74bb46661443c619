package embedding

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// TFIDFEmbedder generates TF-IDF bag-of-words embeddings as a fallback
// when no embedding service is reachable. The vocabulary is built from
// the dimension registry: each dimension's name, tags, and definition
// form one document.
type TFIDFEmbedder struct {
	vocab []string           // ordered vocabulary (top terms by doc frequency)
	idf   map[string]float64 // inverse document frequency per term
	dims  int
}

// NewTFIDFEmbedder builds a TF-IDF embedder from the registry corpus.
func NewTFIDFEmbedder(reg *registry.Registry, maxTerms int) *TFIDFEmbedder {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	var docs []string
	for _, dim := range reg.All() {
		docs = append(docs, dim.Name+" "+strings.Join(dim.CanonicalTags, " ")+" "+dim.Definition)
	}

	// Document frequency per term
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	type termFreq struct {
		term string
		freq int
	}
	var terms []termFreq
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})

	dims := maxTerms
	if len(terms) < dims {
		dims = len(terms)
	}
	if dims == 0 {
		dims = 1 // minimum dimension to avoid zero-length vectors
	}

	vocab := make([]string, dims)
	idf := make(map[string]float64)
	numDocs := float64(len(docs))
	if numDocs == 0 {
		numDocs = 1
	}

	for i := 0; i < dims && i < len(terms); i++ {
		vocab[i] = terms[i].term
		// IDF = log(N / df) + 1 (smoothed)
		idf[vocab[i]] = math.Log(numDocs/float64(terms[i].freq)) + 1.0
	}

	return &TFIDFEmbedder{
		vocab: vocab,
		idf:   idf,
		dims:  dims,
	}
}

func (t *TFIDFEmbedder) Model() string   { return "tfidf" }
func (t *TFIDFEmbedder) Dimensions() int { return t.dims }

// Embed generates a normalized TF-IDF vector for the given text.
func (t *TFIDFEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return make([]float64, t.dims), nil
	}

	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}

	vec := make([]float64, t.dims)
	maxTF := 0
	for _, c := range tf {
		if c > maxTF {
			maxTF = c
		}
	}

	for i, term := range t.vocab {
		count := tf[term]
		if count == 0 {
			continue
		}
		// Augmented TF to prevent bias towards longer documents
		augTF := 0.5 + 0.5*float64(count)/float64(maxTF)
		idf := t.idf[term]
		if idf == 0 {
			idf = 1.0
		}
		vec[i] = augTF * idf
	}

	Normalize(vec)
	return vec, nil
}

// tokenize splits text into lowercase tokens. ASCII words are split on
// non-alphanumerics; CJK runs are kept whole so canonical tags written
// in Chinese survive as terms.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 1 { // skip single-char tokens
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	prevCJK := false
	for _, r := range text {
		isCJK := r >= 0x4E00 && r <= 0x9FFF
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'

		switch {
		case isCJK:
			if !prevCJK {
				flush()
			}
			current.WriteRune(r)
		case isWord:
			if prevCJK {
				flush()
			}
			current.WriteRune(r)
		default:
			flush()
		}
		prevCJK = isCJK
	}
	flush()
	return tokens
}
