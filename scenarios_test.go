package minipy

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type scenario struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Output string `yaml:"output"`
	Error  string `yaml:"error"`
}

func loadScenarios(t *testing.T, path string) []scenario {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var scenarios []scenario
	require.NoError(t, yaml.Unmarshal(data, &scenarios))
	require.NotEmpty(t, scenarios)
	return scenarios
}

func TestScenarios(t *testing.T) {
	for _, example := range loadScenarios(t, "testdata/scenarios.yaml") {
		t.Run(example.Name, func(t *testing.T) {
			output, err := run(t, example.Source)
			if example.Error == "" {
				require.NoError(t, err)
				assert.Equal(t, example.Output, output)
				return
			}
			var raised *Error
			require.True(t, errors.As(err, &raised), "expected %s, got %v", example.Error, err)
			assert.Equal(t, example.Error, typeName(raised.Value))
			if example.Output != "" {
				assert.Equal(t, example.Output, output)
			}
		})
	}
}
