package command

import "fmt"

// Reserved categories stay reachable regardless of stored configuration so
// health checks and session introspection keep working when everything else
// is switched off.
var reservedCategories = map[string]bool{
	"ping":   true,
	"agents": true,
}

// GateStore is the slice of host configuration the gate consults. The
// settings package implements it.
type GateStore interface {
	CategoryEnabled(name string) bool
	SetCategoryEnabled(name string, enabled bool) error
}

// Gate answers whether a command category may execute. It is consulted by
// the bridge before a request is handed to the main-thread executor, so
// disabled commands never contend for the host's designated goroutine.
type Gate struct {
	store GateStore
}

// NewGate creates a gate backed by the given settings store.
func NewGate(store GateStore) *Gate {
	return &Gate{store: store}
}

// Enabled reports whether commands in the category may execute.
func (g *Gate) Enabled(category string) bool {
	if reservedCategories[category] {
		return true
	}
	return g.store.CategoryEnabled(category)
}

// SetEnabled flips a category flag. Reserved categories cannot be disabled.
func (g *Gate) SetEnabled(category string, enabled bool) error {
	if reservedCategories[category] {
		return fmt.Errorf("category %q is reserved and cannot be %s", category, enabledWord(!enabled))
	}
	return g.store.SetCategoryEnabled(category, enabled)
}

// Reserved reports whether the category bypasses gating entirely.
func Reserved(category string) bool {
	return reservedCategories[category]
}

// DisabledError builds the structured error message returned for a gated-off
// command, naming the category and the remediation.
func DisabledError(category string) error {
	return fmt.Errorf("Category '%s' is currently disabled. Enable it with the categories/set command or in the host bridge settings", category)
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
