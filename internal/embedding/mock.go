package embedding

import "context"

// Static is a test double that returns fixed vectors per text.
type Static struct {
	Vectors map[string][]float64
	Dims    int
	Err     error
}

// Embed returns the canned vector for text, or a zero vector when the
// text is unknown.
func (s *Static) Embed(_ context.Context, text string) ([]float64, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if v, ok := s.Vectors[text]; ok {
		return v, nil
	}
	return make([]float64, s.Dims), nil
}

func (s *Static) Model() string   { return "static" }
func (s *Static) Dimensions() int { return s.Dims }
