package merge

import (
	"sort"
	"sync"

	"github.com/investrack/portfolio-service/internal/domain"
)

// Filter is a non-empty subset of brokers a portfolio view operates over.
// Deselecting the last remaining broker is rejected, leaving the prior
// selection unchanged — a view can never silently collapse to zero brokers.
type Filter struct {
	mu       sync.RWMutex
	selected map[string]bool
}

// NewFilter builds a filter over the given brokers. At least one is required.
func NewFilter(brokerIDs ...string) (*Filter, error) {
	if len(brokerIDs) == 0 {
		return nil, domain.E(domain.KindValidation, "broker filter requires at least one broker")
	}
	selected := make(map[string]bool, len(brokerIDs))
	for _, id := range brokerIDs {
		selected[id] = true
	}
	return &Filter{selected: selected}, nil
}

// AllBrokers returns a filter over the full broker catalog.
func AllBrokers() *Filter {
	ids := make([]string, 0)
	for _, b := range domain.Brokers() {
		ids = append(ids, b.ID)
	}
	f, _ := NewFilter(ids...)
	return f
}

// Select adds a broker to the active set.
func (f *Filter) Select(brokerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected[brokerID] = true
}

// Deselect removes a broker from the active set. Removing the last selected
// broker fails and the selection is left unchanged.
func (f *Filter) Deselect(brokerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.selected[brokerID] {
		return nil
	}
	if len(f.selected) == 1 {
		return domain.E(domain.KindValidation, "cannot deselect the last remaining broker")
	}
	delete(f.selected, brokerID)
	return nil
}

// Includes reports whether the broker is in the active set. Merged positions
// tagged "multiple" always pass: they only exist because their contributors
// passed.
func (f *Filter) Includes(brokerID string) bool {
	if brokerID == domain.BrokerMultiple {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.selected[brokerID]
}

// Selected returns the active broker IDs in stable order.
func (f *Filter) Selected() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.selected))
	for id := range f.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
