package narration

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDeck []byte

// deckFile is the on-disk deck format. Slide indices come from list order
// and full text is always derived.
type deckFile struct {
	Title  string `yaml:"title"`
	Slides []struct {
		Title    string   `yaml:"title"`
		Segments []string `yaml:"segments"`
	} `yaml:"slides"`
}

// Parse decodes a YAML deck.
func Parse(data []byte) (Deck, error) {
	var f deckFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse deck: %w", err)
	}

	deck := make(Deck, 0, len(f.Slides))
	for i, slide := range f.Slides {
		s, err := New(i, slide.Segments...)
		if err != nil {
			return nil, err
		}
		s.Title = slide.Title
		deck = append(deck, s)
	}

	if err := deck.Validate(); err != nil {
		return nil, err
	}
	return deck, nil
}

// LoadFile reads a YAML deck from path.
func LoadFile(path string) (Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in presentation deck.
func Default() Deck {
	deck, err := Parse(defaultDeck)
	if err != nil {
		panic(fmt.Sprintf("built-in deck is invalid: %v", err))
	}
	return deck
}
