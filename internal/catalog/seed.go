// Package catalog loads the fixed activity catalog the enrollment store is seeded with.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"example.com/enrollment/internal/domain"
)

// ErrInvalidSeed wraps every validation failure of a seed document.
var ErrInvalidSeed = errors.New("invalid catalog seed")

//go:embed seed.toml
var defaultSeed string

type seedFile struct {
	Activities []seedActivity `toml:"activity"`
}

type seedActivity struct {
	Name            string   `toml:"name"`
	Description     string   `toml:"description"`
	Schedule        string   `toml:"schedule"`
	MaxParticipants int      `toml:"max_participants"`
	Participants    []string `toml:"participants"`
}

// Default returns the embedded school catalog.
func Default() ([]domain.Activity, error) {
	return Parse(defaultSeed)
}

// LoadFile reads a seed document from disk.
func LoadFile(path string) ([]domain.Activity, error) {
	var doc seedFile
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc.validate()
}

// Parse decodes a seed document held in memory.
func Parse(data string) ([]domain.Activity, error) {
	var doc seedFile
	if _, err := toml.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return doc.validate()
}

func (f seedFile) validate() ([]domain.Activity, error) {
	if len(f.Activities) == 0 {
		return nil, fmt.Errorf("%w: no activities", ErrInvalidSeed)
	}

	seen := make(map[string]struct{}, len(f.Activities))
	out := make([]domain.Activity, 0, len(f.Activities))
	for i, a := range f.Activities {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: activity #%d has no name", ErrInvalidSeed, i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate activity %q", ErrInvalidSeed, name)
		}
		if a.MaxParticipants <= 0 {
			return nil, fmt.Errorf("%w: activity %q needs max_participants > 0", ErrInvalidSeed, name)
		}
		seen[name] = struct{}{}
		out = append(out, domain.Activity{
			Name:            name,
			Description:     a.Description,
			Schedule:        a.Schedule,
			MaxParticipants: a.MaxParticipants,
			Participants:    append([]string(nil), a.Participants...),
		})
	}
	return out, nil
}
