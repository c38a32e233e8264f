package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"strings", []string{"a", "b"}, `["a","b"]`},
		{"mixed array", []any{"a", 1, nil}, `["a",1,null]`},
		{"empty object", Object{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalSortsKeys(t *testing.T) {
	got, err := Marshal(Object{
		"status":  "absent",
		"name":    "Asha",
		"odType":  nil,
		"rollNo":  "S1",
		"updated": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Asha","odType":null,"rollNo":"S1","status":"absent","updated":"x"}`, string(got))
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	got, err := Marshal("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshalLineSeparatorsLiteral(t *testing.T) {
	got, err := Marshal("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = Marshal(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9
	got, err := Marshal("Rene\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"Ren\u00e9\"", string(got))
}

func TestMarshalRejectsFloats(t *testing.T) {
	_, err := Marshal(Object{"fps": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestSortedKeysUTF16(t *testing.T) {
	// U+1F600 encodes to surrogates (0xD83D...) which sort before U+FF5E in UTF-16
	keys := SortedKeys(Object{"\uff5e": 1, "\U0001F600": 2})
	assert.Equal(t, []string{"\U0001F600", "\uff5e"}, keys)
}

func TestHashDeterministic(t *testing.T) {
	a, err := Hash(DomainDaySeed, Object{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := Hash(DomainDaySeed, map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other, err := Hash(DomainRecord, Object{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, other, "domain separation must change the hash")
}
