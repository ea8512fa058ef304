package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/convtest/types"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewRegistryYAMLKeepsOrder(t *testing.T) {
	path := writeConfig(t, "tests.yaml", `
zeta_model:
  model: zeta.pb
  inputs: ["x:0"]
alpha_model:
  model: alpha.pb
  rtol: 0.01
middle_model:
  disabled: true
`)

	reg, err := NewRegistry(Config{Log: log.New(), ConfigFile: path})
	require.NoError(t, err)

	cases := reg.TestCases()
	require.Len(t, cases, 3)
	assert.Equal(t, []string{"zeta_model", "alpha_model", "middle_model"}, reg.Names())
	for i, tc := range cases {
		assert.Equal(t, i+1, tc.Ordinal)
	}

	assert.Equal(t, "{'model': 'zeta.pb', 'inputs': ['x:0']}", cases[0].Payload)
	assert.Equal(t, "{'model': 'alpha.pb', 'rtol': 0.01}", cases[1].Payload)
	assert.Equal(t, "{'disabled': True}", cases[2].Payload)
	params, ok := cases[2].Params.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, params["disabled"])
}

func TestNewRegistryTOML(t *testing.T) {
	path := writeConfig(t, "tests.toml", `
[second]
model = "b.pb"

[first]
model = "a.pb"
opset = 9
`)

	reg, err := NewRegistry(Config{Log: log.New(), ConfigFile: path})
	require.NoError(t, err)

	cases := reg.TestCases()
	require.Len(t, cases, 2)
	assert.Equal(t, "second", cases[0].Name)
	assert.Equal(t, "first", cases[1].Name)
	assert.Equal(t, "{'model': 'b.pb'}", cases[0].Payload)
	assert.Equal(t, "{'model': 'a.pb', 'opset': 9}", cases[1].Payload)
}

func TestNewRegistryFilter(t *testing.T) {
	path := writeConfig(t, "tests.yaml", `
a: {}
b: {}
c: {}
`)

	t.Run("keeps configuration order", func(t *testing.T) {
		reg, err := NewRegistry(Config{Log: log.New(), ConfigFile: path, Tests: []string{"c", " a"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, reg.Names())
		cases := reg.TestCases()
		assert.Equal(t, 1, cases[0].Ordinal)
		assert.Equal(t, 2, cases[1].Ordinal)
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		_, err := NewRegistry(Config{Log: log.New(), ConfigFile: path, Tests: []string{"a", "missing"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
	})
}

func TestNewRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		file    string
		errMsg  string
	}{
		{
			name:    "not a mapping",
			content: "- a\n- b\n",
			file:    "list.yaml",
			errMsg:  "must contain a mapping",
		},
		{
			name:    "invalid yaml",
			content: "a: [unterminated\n",
			file:    "broken.yaml",
			errMsg:  "failed to parse config file",
		},
		{
			name:    "duplicate names",
			content: "a: 1\na: 2\n",
			file:    "dup.yaml",
			errMsg:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := NewRegistry(Config{Log: log.New(), ConfigFile: path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewRegistry(Config{Log: log.New(), ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("no config file", func(t *testing.T) {
		_, err := NewRegistry(Config{Log: log.New()})
		require.Error(t, err)
	})
}

func TestNewRegistryEmptyFile(t *testing.T) {
	path := writeConfig(t, "empty.yaml", "")
	reg, err := NewRegistry(Config{Log: log.New(), ConfigFile: path})
	require.NoError(t, err)
	assert.Empty(t, reg.TestCases())
}

func TestEncodePayload(t *testing.T) {
	assert.Equal(t, "None", encodePayload(nil))
	assert.Equal(t, "raw string", encodePayload("raw string"))
	assert.Equal(t, "[1, 'two']", encodePayload([]any{1, "two"}))
}

func TestPayloadKeepsNestedOrder(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		path := writeConfig(t, "tests.yaml", `
model_x:
  zeta: 1
  inputs:
    b: [1, 2.5]
    a: ~
  alias: &shared {y: true, x: "it's"}
  copy: *shared
  stamp: 2024-03-01
  plain: text
model_y:
model_z: raw
`)
		reg, err := NewRegistry(Config{Log: log.New(), ConfigFile: path})
		require.NoError(t, err)

		cases := reg.TestCases()
		require.Len(t, cases, 3)
		assert.Equal(t,
			`{'zeta': 1, 'inputs': {'b': [1, 2.5], 'a': None}, 'alias': {'y': True, 'x': "it's"}, `+
				`'copy': {'y': True, 'x': "it's"}, 'stamp': '2024-03-01', 'plain': 'text'}`,
			cases[0].Payload)
		assert.Equal(t, "None", cases[1].Payload)
		assert.Equal(t, "raw", cases[2].Payload)
	})

	t.Run("toml", func(t *testing.T) {
		path := writeConfig(t, "tests.toml", `
[model_x]
zeta = 1
rtol = 0.5
backends = ["habana", "cpu"]

[model_x.inputs]
b = true
a = "x:0"
`)
		reg, err := NewRegistry(Config{Log: log.New(), ConfigFile: path})
		require.NoError(t, err)

		cases := reg.TestCases()
		require.Len(t, cases, 1)
		assert.Equal(t,
			"{'zeta': 1, 'rtol': 0.5, 'backends': ['habana', 'cpu'], 'inputs': {'b': True, 'a': 'x:0'}}",
			cases[0].Payload)
	})
}

func TestNewRegistryFromCases(t *testing.T) {
	cases := []types.TestCase{{Name: "x", Ordinal: 1}}
	reg := NewRegistryFromCases(cases)
	cases[0].Name = "mutated"
	assert.Equal(t, []string{"x"}, reg.Names())
}
