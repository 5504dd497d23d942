package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": 1,
		"a": "x",
		"c": map[string]any{"z": true, "y": false},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":{"y":false,"z":true}}`, string(got))
}

func TestMarshalCanonical_UTF16Ordering(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FFFD
	// in UTF-16 even though the UTF-8 bytes sort after.
	got, err := MarshalCanonical(map[string]any{
		"\uFFFD":     1,
		"\U0001F600": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFFFD\":1}", string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))

	// A literal backslash followed by the text u2028 stays escaped.
	got, err = MarshalCanonical(`a\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"float", 1.5},
		{"nested nil", map[string]any{"a": nil}},
		{"struct", struct{}{}},
		{"array float", []any{1, 2.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestMarshalCanonical_Arrays(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"ids":  []string{"b", "a"},
		"mix":  []any{int64(3), "x", []any{}},
		"maps": []map[string]any{{"k": ScheduleID("s-1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ids":["b","a"],"maps":[{"k":"s-1"}],"mix":[3,"x",[]]}`, string(got))
}

func TestFingerprint_DomainSeparated(t *testing.T) {
	v := map[string]any{"a": 1}
	a, err := Fingerprint(DomainSchedule, v)
	require.NoError(t, err)
	b, err := Fingerprint(DomainTrace, v)
	require.NoError(t, err)
	again, err := Fingerprint(DomainSchedule, map[string]any{"a": 1})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
}
