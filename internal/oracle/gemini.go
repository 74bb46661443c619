package oracle

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/pw-Chen-km/Twin3-algo/internal/config"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
)

// Gemini scores and tags content through the Google GenAI API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	httpClient  *http.Client
	knownTags   []string // vocabulary anchors for extraction prompts
}

// NewGemini creates a Gemini-backed oracle.
func NewGemini(ctx context.Context, cfg config.OracleConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &Gemini{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (g *Gemini) generate(ctx context.Context, ev Event, prompt string) (string, error) {
	parts := []*genai.Part{}
	if ev.Media != "" {
		if part, err := g.mediaPart(ctx, ev.Media); err == nil {
			parts = append(parts, part)
		}
		// Media fetch failures degrade to text-only scoring.
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// mediaPart resolves an image reference (URL or local path) into an
// inline-data part.
func (g *Gemini) mediaPart(ctx context.Context, ref string) (*genai.Part, error) {
	var data []byte
	var mimeType string

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("media request: %w", err)
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch media: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch media status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("read media: %w", err)
		}
		mimeType = resp.Header.Get("Content-Type")
	} else {
		var err error
		data, err = os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read media file: %w", err)
		}
		mimeType = mime.TypeByExtension(filepath.Ext(ref))
	}

	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return genai.NewPartFromBytes(data, mimeType), nil
}

// ExtractTags asks Gemini for up to maxTags semantic tags.
func (g *Gemini) ExtractTags(ctx context.Context, ev Event, maxTags int) ([]string, error) {
	resp, err := g.generate(ctx, ev, TagExtractionPrompt(ev.Text, g.knownTags, maxTags))
	if err != nil {
		return nil, err
	}

	tags := ParseTagList(resp, maxTags)
	if len(tags) == 0 {
		return nil, fmt.Errorf("gemini returned no parseable tags: %q", resp)
	}
	return tags, nil
}

var scoreRe = regexp.MustCompile(`\b(\d{1,3})\b`)

// ScoreDimension asks Gemini for a raw 0-255 score. Out-of-range
// numbers are clamped; a response with no number at all is an error.
func (g *Gemini) ScoreDimension(ctx context.Context, dim registry.Dimension, ev Event, priorValue int) (int, error) {
	resp, err := g.generate(ctx, ev, ScoringPrompt(dim, ev.Text, priorValue))
	if err != nil {
		return 0, err
	}

	m := scoreRe.FindString(resp)
	if m == "" {
		return 0, fmt.Errorf("gemini returned no parseable score: %q", resp)
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", m, err)
	}
	return clampScore(v), nil
}

// ParseTagList splits a comma- or whitespace-separated model response
// into at most maxTags cleaned tags.
func ParseTagList(resp string, maxTags int) []string {
	var raw []string
	if strings.Contains(resp, ",") {
		raw = strings.Split(resp, ",")
	} else {
		raw = strings.Fields(resp)
	}

	var tags []string
	for _, t := range raw {
		t = strings.TrimSpace(strings.Trim(t, ".、"))
		if t == "" || len([]rune(t)) < 2 || len([]rune(t)) > 20 {
			continue
		}
		tags = append(tags, t)
		if len(tags) >= maxTags {
			break
		}
	}
	return tags
}
