package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type yamlFileSource struct {
	path string
}

// NewYAMLSource returns a PlansListSource that reads the plan catalog from a
// YAML file. The file holds a list of plans:
//
//   - id: monthly
//     name: Premium Monthly
//     description: Unlimited premium posts, billed monthly.
//     lookup_key: monthly
//     public: true
//
// The file is read on every Load, so the catalog is picked up fresh on
// service construction without a process restart.
func NewYAMLSource(path string) PlansListSource {
	if path == "" {
		panic("subscription: plans file path is required")
	}
	return &yamlFileSource{path: path}
}

func (s *yamlFileSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var plans []Plan
	if err := yaml.Unmarshal(raw, &plans); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans,
			fmt.Errorf("no plans defined in %s", s.path))
	}

	byID := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		if _, exists := byID[plan.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %s in %s", plan.ID, s.path))
		}
		byID[plan.ID] = plan
	}
	return byID, nil
}
