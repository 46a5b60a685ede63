package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/stoik/phish-catcher/internal/domain"
	"gopkg.in/yaml.v3"
)

// SuspiciousDocument is one keyword/TLD configuration file
type SuspiciousDocument struct {
	Keywords map[string]int `yaml:"keywords"`
	TLDs     TLDSet         `yaml:"tlds"`

	// Only meaningful in the override document
	OverrideBase bool `yaml:"override_suspicious.yaml"`
}

// TLDSet accepts either a mapping with null values ('.gq':) or a plain sequence
type TLDSet map[string]struct{}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *TLDSet) UnmarshalYAML(node *yaml.Node) error {
	set := make(TLDSet)
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i < len(node.Content); i += 2 {
			set[node.Content[i].Value] = struct{}{}
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			set[item.Value] = struct{}{}
		}
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			return fmt.Errorf("line %d: tlds must be a mapping or a sequence", node.Line)
		}
		// Explicit null leaves the set nil, a no-op merge
		return nil
	default:
		return fmt.Errorf("line %d: tlds must be a mapping or a sequence", node.Line)
	}
	*s = set
	return nil
}

// ParseSuspicious decodes a keyword/TLD document
func ParseSuspicious(data []byte) (SuspiciousDocument, error) {
	var doc SuspiciousDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SuspiciousDocument{}, fmt.Errorf("failed to decode suspicious document: %w", err)
	}
	return doc, nil
}

// Merge builds the scoring context from the base and override documents.
// An override flagged OverrideBase replaces the base entirely; otherwise its keywords
// are upserted and its TLDs added. Missing sections change nothing.
func Merge(base, override SuspiciousDocument) domain.ScoringContext {
	ctx := domain.NewScoringContext()

	sources := []SuspiciousDocument{base, override}
	if override.OverrideBase {
		sources = []SuspiciousDocument{override}
	}

	for _, doc := range sources {
		for word, weight := range doc.Keywords {
			ctx.Keywords[strings.ToLower(word)] = weight
		}
		for tld := range doc.TLDs {
			ctx.TLDs[strings.ToLower(tld)] = struct{}{}
		}
	}
	return ctx
}

// LoadScoringContext reads and merges the base and override documents.
// A missing override file is an empty override.
func LoadScoringContext(basePath, overridePath string) (domain.ScoringContext, error) {
	base, err := readSuspicious(basePath)
	if err != nil {
		return domain.ScoringContext{}, err
	}

	var override SuspiciousDocument
	if overridePath != "" {
		override, err = readSuspicious(overridePath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return domain.ScoringContext{}, err
		}
	}

	return Merge(base, override), nil
}

func readSuspicious(path string) (SuspiciousDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SuspiciousDocument{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := ParseSuspicious(data)
	if err != nil {
		return SuspiciousDocument{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
