// Package config holds the persisted bridge settings: listen port,
// auto-start, and the per-category command gating flags.
package config

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	kdl "github.com/sblinch/kdl-go"
)

// SettingsFileName is the name of the bridge configuration file.
const SettingsFileName = "hostbridge.kdl"

// DefaultPort is the loopback port the bridge listens on when unconfigured.
const DefaultPort = 8765

// fileSettings is the on-disk shape of the settings file.
type fileSettings struct {
	Port       int             `kdl:"port"`
	AutoStart  bool            `kdl:"auto-start"`
	Categories map[string]bool `kdl:"categories"`
}

// Settings is the live settings store. All accessors are safe for
// concurrent use; category flags default to enabled when unset.
type Settings struct {
	mu   sync.RWMutex
	path string
	data fileSettings
}

// Defaults returns in-memory settings without a backing file. SetCategoryEnabled
// on such settings mutates memory only.
func Defaults() *Settings {
	return &Settings{data: defaultData()}
}

func defaultData() fileSettings {
	return fileSettings{
		Port:       DefaultPort,
		AutoStart:  true,
		Categories: make(map[string]bool),
	}
}

// Load reads settings from path. A missing file yields defaults bound to
// that path, so the first Save creates it.
func Load(path string) (*Settings, error) {
	s := &Settings{path: path, data: defaultData()}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	parsed, err := parseSettings(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	s.data = *parsed
	return s, nil
}

// parseSettings decodes the KDL settings text. kdl-go handles the canonical
// format; a line-oriented fallback covers hand-edited variants it rejects.
func parseSettings(data string) (*fileSettings, error) {
	out := defaultData()
	if err := kdl.Unmarshal([]byte(data), &out); err == nil {
		// kdl-go has been seen to succeed while leaving fields empty; only
		// trust a result that actually picked up the document's content.
		complete := out.Port > 0 && (len(out.Categories) > 0 || !strings.Contains(data, "categories"))
		if complete {
			if out.Categories == nil {
				out.Categories = make(map[string]bool)
			}
			return &out, nil
		}
		log.Printf("[Config] kdl-go returned incomplete settings, using fallback parser")
	} else {
		log.Printf("[Config] kdl-go parse failed (%v), using fallback parser", err)
	}
	return parseSettingsSimple(data)
}

// parseSettingsSimple parses the settings format line by line:
//
//	port 8765
//	auto-start true
//	categories {
//	    scene true
//	    amplify false
//	}
func parseSettingsSimple(data string) (*fileSettings, error) {
	out := defaultData()

	scanner := bufio.NewScanner(strings.NewReader(data))
	inCategories := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if inCategories {
			if line == "}" {
				inCategories = false
				continue
			}
			fields := strings.Fields(line)
			if len(fields) == 2 {
				name := strings.Trim(fields[0], `"`)
				enabled, err := strconv.ParseBool(fields[1])
				if err != nil {
					return nil, fmt.Errorf("category %q: bad flag %q", name, fields[1])
				}
				out.Categories[name] = enabled
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "categories") && strings.HasSuffix(line, "{"):
			inCategories = true
		case strings.HasPrefix(line, "port "):
			port, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "port ")))
			if err != nil {
				return nil, fmt.Errorf("bad port: %w", err)
			}
			out.Port = port
		case strings.HasPrefix(line, "auto-start "):
			on, err := strconv.ParseBool(strings.TrimSpace(strings.TrimPrefix(line, "auto-start ")))
			if err != nil {
				return nil, fmt.Errorf("bad auto-start: %w", err)
			}
			out.AutoStart = on
		}
	}
	return &out, scanner.Err()
}

// Port returns the configured listen port.
func (s *Settings) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Port
}

// SetPort updates the listen port in memory.
func (s *Settings) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Port = port
}

// AutoStart reports whether the bridge should start with the host.
func (s *Settings) AutoStart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AutoStart
}

// CategoryEnabled reports the stored flag for a category. Categories with no
// stored flag are enabled.
func (s *Settings) CategoryEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, ok := s.data.Categories[name]
	return !ok || enabled
}

// SetCategoryEnabled stores a category flag and persists the file when the
// settings are file-backed.
func (s *Settings) SetCategoryEnabled(name string, enabled bool) error {
	s.mu.Lock()
	s.data.Categories[name] = enabled
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	return s.Save()
}

// Save writes the settings file.
func (s *Settings) Save() error {
	if s.path == "" {
		return fmt.Errorf("settings have no backing file")
	}

	s.mu.RLock()
	text := renderSettings(s.data)
	s.mu.RUnlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// renderSettings emits the canonical KDL settings text.
func renderSettings(data fileSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s - host bridge configuration\n", SettingsFileName)
	fmt.Fprintf(&b, "port %d\n", data.Port)
	fmt.Fprintf(&b, "auto-start %t\n", data.AutoStart)

	if len(data.Categories) > 0 {
		names := make([]string, 0, len(data.Categories))
		for name := range data.Categories {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("categories {\n")
		for _, name := range names {
			fmt.Fprintf(&b, "    %s %t\n", name, data.Categories[name])
		}
		b.WriteString("}\n")
	}
	return b.String()
}
