package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"b": 1, "a": "x", "c": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(data))
}

func TestMarshal_NestedCollections(t *testing.T) {
	data, err := Marshal(map[string]any{
		"list":    []any{int64(1), "two", []int{3, 4}},
		"names":   []string{"p", "q"},
		"nothing": []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"list":[1,"two",[3,4]],"names":["p","q"],"nothing":[]}`, string(data))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(data))
}

func TestMarshal_EscapesControlCharacters(t *testing.T) {
	data, err := Marshal("q\"\\\n\t\x01")
	require.NoError(t, err)
	assert.Equal(t, `"q\"\\\n\t\u0001"`, string(data))
}

func TestMarshal_LineSeparatorsUnescaped(t *testing.T) {
	data, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(data))
}

func TestMarshal_NFCNormalizes(t *testing.T) {
	data, err := Marshal("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(data))
}

func TestMarshal_RejectsFloatAndNull(t *testing.T) {
	_, err := Marshal(1.5)
	assert.ErrorContains(t, err, "floats are forbidden")

	_, err = Marshal(map[string]any{"x": nil})
	assert.ErrorContains(t, err, `object["x"]: null is forbidden`)

	_, err = Marshal(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FB01
	// in UTF-16 even though its UTF-8 bytes sort after.
	keys := SortedKeys(map[string]any{"\uFB01": 1, "\U0001F600": 2, "a": 3})
	assert.Equal(t, []string{"a", "\U0001F600", "\uFB01"}, keys)
}

func TestDigest_Deterministic(t *testing.T) {
	a, err := Digest(DomainReport, map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := Digest(DomainReport, map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest("other/domain", map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
