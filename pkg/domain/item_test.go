package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ContentFingerprint("hello world"), ContentFingerprint("hello world"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, ContentFingerprint("Hello World"), ContentFingerprint("hello world"))
	})

	t.Run("whitespace collapsed", func(t *testing.T) {
		assert.Equal(t, ContentFingerprint("hello world"), ContentFingerprint("  hello \n\t world  "))
	})

	t.Run("different content differs", func(t *testing.T) {
		assert.NotEqual(t, ContentFingerprint("hello world"), ContentFingerprint("hello there"))
	})

	t.Run("empty content hashes to fixed value", func(t *testing.T) {
		// sha256 of the empty string
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentFingerprint(""))
		assert.Equal(t, ContentFingerprint(""), ContentFingerprint("   \n  "))
	})

	t.Run("hex encoded sha256 length", func(t *testing.T) {
		require.Len(t, ContentFingerprint("anything"), 64)
	})
}

func TestMetadata_Float(t *testing.T) {
	tests := []struct {
		name   string
		meta   Metadata
		key    string
		want   float64
		wantOK bool
	}{
		{name: "float64 value", meta: Metadata{"points": float64(42)}, key: "points", want: 42, wantOK: true},
		{name: "int value", meta: Metadata{"points": 42}, key: "points", want: 42, wantOK: true},
		{name: "int64 value", meta: Metadata{"citations": int64(7)}, key: "citations", want: 7, wantOK: true},
		{name: "missing key", meta: Metadata{"points": 42}, key: "score", wantOK: false},
		{name: "string value", meta: Metadata{"tier": "top"}, key: "tier", wantOK: false},
		{name: "nil value", meta: Metadata{"points": nil}, key: "points", wantOK: false},
		{name: "nil map", meta: nil, key: "points", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.meta.Float(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}
