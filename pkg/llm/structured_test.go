package llm

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type orderIntent struct {
	Action     string   `json:"action" description:"open_long, open_short, close or hold"`
	Symbol     string   `json:"symbol" description:"coin symbol, e.g. BTC"`
	Leverage   int      `json:"leverage"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`

	internal string `json:"internal"`
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema(&orderIntent{})
	require.NoError(t, err)
	require.Equal(t, "object", schema["type"])

	props := schema["properties"].(map[string]interface{})
	require.Len(t, props, 6, "unexported fields never reach the schema")

	action := props["action"].(map[string]interface{})
	require.Equal(t, "string", action["type"])
	require.Equal(t, "open_long, open_short, close or hold", action["description"])

	require.Equal(t, "integer", props["leverage"].(map[string]interface{})["type"])
	require.Equal(t, "number", props["confidence"].(map[string]interface{})["type"])

	reasons := props["reasons"].(map[string]interface{})
	require.Equal(t, "array", reasons["type"])
	require.Equal(t, "string", reasons["items"].(map[string]interface{})["type"])

	// Pointers describe their element type.
	require.Equal(t, "number", props["stop_loss"].(map[string]interface{})["type"])

	required := schema["required"].([]string)
	require.ElementsMatch(t, []string{"action", "symbol", "leverage", "confidence"}, required)
}

func TestGenerateSchemaRejectsNonStructs(t *testing.T) {
	_, err := GenerateSchema(nil)
	require.ErrorContains(t, err, "cannot be nil")

	_, err = GenerateSchema("just a string")
	require.ErrorContains(t, err, "requires a struct")

	n := 7
	_, err = GenerateSchema(&n)
	require.ErrorContains(t, err, "requires a struct")
}

func TestGenerateSchemaNestedTypes(t *testing.T) {
	type fill struct {
		Price float64 `json:"price"`
		Qty   float64 `json:"qty"`
	}
	type report struct {
		Fills    []fill          `json:"fills"`
		BySymbol map[string]fill `json:"by_symbol"`
		Flags    [4]bool         `json:"flags"`
		Ignored  string          `json:"-"`
	}

	schema, err := GenerateSchema(report{})
	require.NoError(t, err)

	props := schema["properties"].(map[string]interface{})
	require.Len(t, props, 3)
	require.NotContains(t, props, "Ignored")

	fills := props["fills"].(map[string]interface{})
	require.Equal(t, "array", fills["type"])
	items := fills["items"].(map[string]interface{})
	require.Equal(t, "object", items["type"])
	itemProps := items["properties"].(map[string]interface{})
	require.Equal(t, "number", itemProps["price"].(map[string]interface{})["type"])

	bySymbol := props["by_symbol"].(map[string]interface{})
	require.Equal(t, "object", bySymbol["type"])
	additional := bySymbol["additionalProperties"].(map[string]interface{})
	require.Equal(t, "object", additional["type"])

	flags := props["flags"].(map[string]interface{})
	require.Equal(t, "array", flags["type"])
	require.Equal(t, "boolean", flags["items"].(map[string]interface{})["type"])
}

func TestGenerateSchemaDescriptionsAreTopLevelOnly(t *testing.T) {
	type inner struct {
		Note string `json:"note" description:"nested note"`
	}
	type outer struct {
		Inner inner `json:"inner" description:"outer description"`
	}

	schema, err := GenerateSchema(outer{})
	require.NoError(t, err)

	props := schema["properties"].(map[string]interface{})
	innerSchema := props["inner"].(map[string]interface{})
	require.Equal(t, "outer description", innerSchema["description"])

	innerProps := innerSchema["properties"].(map[string]interface{})
	note := innerProps["note"].(map[string]interface{})
	_, hasDesc := note["description"]
	require.False(t, hasDesc)
}

func TestSchemaForFallsBackToString(t *testing.T) {
	schema := schemaFor(reflect.TypeOf(make(chan int)))
	require.Equal(t, "string", schema["type"])

	schema = schemaFor(reflect.TypeOf(complex(1, 2)))
	require.Equal(t, "string", schema["type"])
}

func TestJSONName(t *testing.T) {
	tests := []struct {
		tag      string
		name     string
		optional bool
		skip     bool
	}{
		{`json:"price"`, "price", false, false},
		{`json:"price,omitempty"`, "price", true, false},
		{`json:",omitempty"`, "Field", true, false},
		{`json:"-"`, "", false, true},
		{``, "Field", false, false},
	}

	for _, tt := range tests {
		field := reflect.StructField{Name: "Field", Tag: reflect.StructTag(tt.tag)}
		name, optional, skip := jsonName(field)
		require.Equal(t, tt.skip, skip, "tag %q", tt.tag)
		if !tt.skip {
			require.Equal(t, tt.name, name, "tag %q", tt.tag)
			require.Equal(t, tt.optional, optional, "tag %q", tt.tag)
		}
	}
}

func TestParseStructured(t *testing.T) {
	var intent orderIntent
	err := ParseStructured(`{"action":"open_long","symbol":"ETH","leverage":5,"confidence":0.7,"reasons":["momentum"]}`, &intent)
	require.NoError(t, err)
	require.Equal(t, "open_long", intent.Action)
	require.Equal(t, "ETH", intent.Symbol)
	require.Equal(t, 5, intent.Leverage)
	require.Equal(t, []string{"momentum"}, intent.Reasons)

	err = ParseStructured(`{"action":`, &intent)
	require.ErrorContains(t, err, "decode structured response")

	err = ParseStructured(`{}`, nil)
	require.ErrorContains(t, err, "must be a pointer")

	err = ParseStructured(`{}`, intent)
	require.ErrorContains(t, err, "must be a pointer")
}
