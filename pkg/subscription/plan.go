package subscription

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// Plan describes a purchasable plan in the local catalog. The catalog only
// carries identity and presentation data; pricing lives in the provider and
// is resolved at runtime through the price lookup key.
type Plan struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	LookupKey   string `yaml:"lookup_key"` // provider price lookup key
	Public      bool   `yaml:"public"`     // listed on the pricing page
}

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory PlansListSource with a copy of the
// given plans. Panics if no plans are provided to ensure the service always
// has at least one valid plan.
func NewInMemSource(plans ...Plan) PlansListSource {
	if len(plans) < 1 {
		panic("subscription: at least one plan is required")
	}
	byID := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		byID[plan.ID] = plan
	}
	return &inMemSource{plans: byID}
}

// Load returns a copy of all available plans from memory.
// Copying prevents callers from modifying the source's internal state.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.plans), nil
}

// validatePlans ensures plan configurations are internally consistent.
// Catches configuration errors at startup rather than at checkout time.
func validatePlans(plans map[string]Plan) error {
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		if plan.LookupKey == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has no price lookup key", planID))
		}
	}
	return nil
}
