package plan

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// planSpec is the YAML seed representation of a plan. Prices in the seed file
// are written in major units (som) for readability and converted to minor
// units on load.
type planSpec struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	PriceMajor   int64  `yaml:"price"`
	DurationDays int    `yaml:"duration_days"`
	Type         string `yaml:"type"`
	TrialDays    int    `yaml:"trial_days"`
}

type fileSource struct {
	path string

	once  sync.Once
	plans map[string]Plan
	err   error
}

// NewFileSource returns a Source backed by a YAML seed file. The file is read
// once on first Load and cached; plans are immutable for the process lifetime.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

func (s *fileSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.once.Do(func() {
		s.plans, s.err = s.read()
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.plans, nil
}

func (s *fileSource) read() (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan seed: %w", err)
	}

	var specs []planSpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parse plan seed: %w", err)
	}
	if len(specs) == 0 {
		return nil, ErrNoPlans
	}

	plans := make(map[string]Plan, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("plan seed entry without id")
		}
		typ := SubscriptionType(spec.Type)
		if typ != TypeSubscription && typ != TypeOnetime {
			return nil, fmt.Errorf("plan %s: unknown type %q", spec.ID, spec.Type)
		}
		plans[spec.ID] = Plan{
			ID:           spec.ID,
			Name:         spec.Name,
			Description:  spec.Description,
			Price:        spec.PriceMajor * 100,
			DurationDays: spec.DurationDays,
			Type:         typ,
			TrialDays:    spec.TrialDays,
		}
	}
	return plans, nil
}
