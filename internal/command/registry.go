// Package command routes named bridge operations to their handlers and
// decides, per category, whether an operation may execute at all.
package command

import (
	"fmt"
	"sort"
	"strings"
)

// Handler executes a single named operation. It receives the decoded
// parameter map and returns a structured result, or an error for logical
// failures (missing parameter, target not found). Handlers must not panic
// for expected conditions.
type Handler func(params map[string]any) (any, error)

// Command is a resolved registry entry.
type Command struct {
	// Path is the full command name, e.g. "scene/open".
	Path string
	// Direct commands run on the calling worker goroutine instead of being
	// marshaled to the host's designated goroutine. Only commands that touch
	// no host state (introspection, gating control) may be direct.
	Direct bool

	handler Handler
}

// Invoke runs the command's handler.
func (c Command) Invoke(params map[string]any) (any, error) {
	return c.handler(params)
}

// Registry is the static command table. It is populated once at startup and
// read-only afterwards; there is no runtime registration API past that point.
type Registry struct {
	entries map[string]Command
}

// NewRegistry creates an empty command table.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Command)}
}

// Register adds a command that executes on the host's designated goroutine.
// Registering the same path twice is a startup programming error and panics.
func (r *Registry) Register(path string, h Handler) {
	r.add(path, h, false)
}

// RegisterDirect adds a command that runs on the calling worker goroutine.
func (r *Registry) RegisterDirect(path string, h Handler) {
	r.add(path, h, true)
}

func (r *Registry) add(path string, h Handler, direct bool) {
	if path == "" || h == nil {
		panic("command: empty path or nil handler")
	}
	if _, exists := r.entries[path]; exists {
		panic(fmt.Sprintf("command: duplicate registration for %q", path))
	}
	r.entries[path] = Command{Path: path, Direct: direct, handler: h}
}

// Resolve looks up a command by its full path.
func (r *Registry) Resolve(path string) (Command, bool) {
	cmd, ok := r.entries[path]
	return cmd, ok
}

// Names returns all registered command paths, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Categories returns the distinct categories of all registered commands.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	for name := range r.entries {
		seen[CategoryOf(name)] = true
	}
	cats := make([]string, 0, len(seen))
	for cat := range seen {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// CategoryOf returns the gating category of a command path: the substring
// before the first '/', or the whole path when there is no '/'. The gate and
// the session log both bucket by this, so it must stay pure and stable.
func CategoryOf(path string) string {
	if i := strings.Index(path, "/"); i >= 0 {
		return path[:i]
	}
	return path
}
