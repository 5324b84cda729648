package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"bare object", `{"name":"x","amount":12.5}`},
		{"prose around object", `Sure! Here is the JSON you asked for:
{"name":"x","amount":12.5}
Let me know if you need anything else.`},
		{"json fence", "```json\n{\"name\":\"x\",\"amount\":12.5}\n```"},
		{"plain fence", "```\n{\"name\":\"x\",\"amount\":12.5}\n```"},
		{"leading whitespace", "\n\n  {\"name\":\"x\",\"amount\":12.5}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			require.NoError(t, ExtractJSON(tt.response, &p))
			assert.Equal(t, "x", p.Name)
			assert.Equal(t, 12.5, p.Amount)
		})
	}
}

func TestExtractJSONNested(t *testing.T) {
	var p struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, ExtractJSON(`{"data":{"merchant":"AirShop","total":"350.00"}}`, &p))
	assert.Equal(t, "AirShop", p.Data["merchant"])
}

func TestExtractJSONErrors(t *testing.T) {
	var p payload
	assert.ErrorIs(t, ExtractJSON("I cannot help with that.", &p), ErrNoJSON)
	assert.ErrorIs(t, ExtractJSON("", &p), ErrNoJSON)
	assert.ErrorIs(t, ExtractJSON("{not valid json}", &p), ErrNoJSON)
	assert.ErrorIs(t, ExtractJSON("}{", &p), ErrNoJSON)
}
