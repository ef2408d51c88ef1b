package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// RunToolContractTests runs the contract checks every tool must pass.
// Call it from each tool's test file.
func RunToolContractTests(t *testing.T, tool Tool) {
	t.Helper()

	t.Run("Contract/Name_NonEmpty", func(t *testing.T) {
		assert.NotEmpty(t, tool.Name())
	})

	t.Run("Contract/Description_NonEmpty", func(t *testing.T) {
		assert.NotEmpty(t, tool.Description())
	})

	t.Run("Contract/Parameters_ValidSchema", func(t *testing.T) {
		p := tool.Parameters()
		assert.NotNil(t, p)
		assert.Equal(t, "object", p["type"])
		_, hasProps := p["properties"]
		assert.True(t, hasProps, "parameters must declare properties")
	})

	t.Run("Contract/ToSchema_Format", func(t *testing.T) {
		schema := ToSchema(tool)
		assert.Equal(t, "function", schema["type"])
		fn, ok := schema["function"].(map[string]any)
		assert.True(t, ok)
		assert.Equal(t, tool.Name(), fn["name"])
		assert.Equal(t, tool.Description(), fn["description"])
	})
}
