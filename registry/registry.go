package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/convtest/pyliteral"
	"github.com/ethereum-optimism/infra/convtest/types"
)

// Registry holds the ordered test cases of one run
type Registry struct {
	config Config
	cases  []types.TestCase
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log        log.Logger
	ConfigFile string   // YAML mapping of test name to parameters, or a .toml file
	Tests      []string // Optional subset of test names to run
}

// entry is one raw name and params pair in file order
type entry struct {
	name    string
	params  any
	literal any // params with mapping order kept, for the payload
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.ConfigFile == "" {
		return nil, fmt.Errorf("test configuration file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadTestCases(cfg.ConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load test cases: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(cases)", len(r.cases))

	return r, nil
}

// NewRegistryFromCases creates a registry from already built test cases
func NewRegistryFromCases(cases []types.TestCase) *Registry {
	cp := make([]types.TestCase, len(cases))
	copy(cp, cases)
	return &Registry{cases: cp}
}

// TestCases returns the test cases in configuration order
func (r *Registry) TestCases() []types.TestCase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := make([]types.TestCase, len(r.cases))
	copy(cp, r.cases)
	return cp
}

// Names returns the test case names in configuration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cases))
	for _, tc := range r.cases {
		names = append(names, tc.Name)
	}
	return names
}

func (r *Registry) loadTestCases(cfgPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		entries []entry
		err     error
	)
	switch strings.ToLower(filepath.Ext(cfgPath)) {
	case ".toml":
		entries, err = loadTOML(cfgPath)
	default:
		entries, err = loadYAML(cfgPath)
	}
	if err != nil {
		return err
	}

	entries, err = filterEntries(entries, r.config.Tests)
	if err != nil {
		return err
	}

	cases := make([]types.TestCase, 0, len(entries))
	for i, e := range entries {
		cases = append(cases, types.TestCase{
			Name:    e.name,
			Params:  e.params,
			Payload: encodePayload(e.literal),
			Ordinal: i + 1,
		})
	}
	r.cases = cases
	return nil
}

// loadYAML reads a top-level mapping keeping the key order of the file
func loadYAML(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config file %s must contain a mapping of test names", path)
	}

	entries := make([]entry, 0, len(root.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if seen[name] {
			return nil, fmt.Errorf("duplicate test name %q", name)
		}
		seen[name] = true

		var params any
		if err := root.Content[i+1].Decode(&params); err != nil {
			return nil, fmt.Errorf("failed to decode parameters of test %s: %w", name, err)
		}
		literal, err := yamlLiteral(root.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("failed to decode parameters of test %s: %w", name, err)
		}
		entries = append(entries, entry{name: name, params: params, literal: literal})
	}
	return entries, nil
}

// loadTOML reads top-level keys in file order using the decoder metadata
func loadTOML(path string) ([]entry, error) {
	var raw map[string]any
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	keys := md.Keys()
	var entries []entry
	for _, key := range keys {
		if len(key) != 1 {
			continue
		}
		name := key[0]
		entries = append(entries, entry{
			name:    name,
			params:  raw[name],
			literal: tomlLiteral(raw[name], key, keys),
		})
	}
	return entries, nil
}

// filterEntries keeps only the named tests, in configuration order
func filterEntries(entries []entry, names []string) ([]entry, error) {
	if len(names) == 0 {
		return entries, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.TrimSpace(name)] = true
	}

	filtered := make([]entry, 0, len(names))
	for _, e := range entries {
		if wanted[e.name] {
			filtered = append(filtered, e)
			delete(wanted, e.name)
		}
	}

	if len(wanted) > 0 {
		var unknown []string
		for _, name := range names {
			if wanted[strings.TrimSpace(name)] {
				unknown = append(unknown, strings.TrimSpace(name))
			}
		}
		return nil, errors.New("unknown tests requested: " + strings.Join(unknown, ", "))
	}
	return filtered, nil
}

// encodePayload renders the parameters as a literal; strings are passed as-is
func encodePayload(literal any) string {
	return pyliteral.Str(literal)
}

// yamlLiteral converts a node into plain values, keeping mapping order
func yamlLiteral(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return yamlLiteral(node.Content[0])
	case yaml.AliasNode:
		return yamlLiteral(node.Alias)
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := yamlLiteral(child)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.MappingNode:
		dict := make(pyliteral.Dict, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, err := yamlLiteral(node.Content[i])
			if err != nil {
				return nil, err
			}
			v, err := yamlLiteral(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			dict = append(dict, pyliteral.Item{Key: k, Value: v})
		}
		return dict, nil
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		if _, ok := v.(time.Time); ok {
			return node.Value, nil
		}
		return v, nil
	}
}

// tomlLiteral orders the tables below path by the decoder key order. Keys
// the metadata does not list follow in sorted order.
func tomlLiteral(value any, path toml.Key, keys []toml.Key) any {
	switch v := value.(type) {
	case map[string]any:
		dict := make(pyliteral.Dict, 0, len(v))
		seen := make(map[string]bool, len(v))
		for _, key := range keys {
			if len(key) != len(path)+1 || !slices.Equal(key[:len(path)], path) {
				continue
			}
			name := key[len(path)]
			child, ok := v[name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			dict = append(dict, pyliteral.Item{Key: name, Value: tomlLiteral(child, key, keys)})
		}
		rest := make([]string, 0, len(v)-len(seen))
		for name := range v {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		for _, name := range rest {
			dict = append(dict, pyliteral.Item{Key: name, Value: tomlLiteral(v[name], append(slices.Clone(path), name), keys)})
		}
		return dict
	case []any:
		list := make([]any, 0, len(v))
		for _, elem := range v {
			list = append(list, tomlLiteral(elem, path, nil))
		}
		return list
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return value
	}
}
