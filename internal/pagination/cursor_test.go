package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)

	encoded := EncodeCursor("note-42", ts)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, "note-42", decoded.LastID)
	assert.True(t, decoded.Timestamp.Equal(ts))
}

func TestEncodeCursorEmptyID(t *testing.T) {
	assert.Empty(t, EncodeCursor("", time.Now()))
}

func TestDecodeCursorEmpty(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!not-base64!!!"},
		// "no-separator"
		{"missing separator", "bm8tc2VwYXJhdG9y"},
		// "note-1|not-a-timestamp"
		{"bad timestamp", "bm90ZS0xfG5vdC1hLXRpbWVzdGFtcA=="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestDecodeCursorEmptyID(t *testing.T) {
	// "|2026-03-01T00:00:00Z" — a separator with no id before it
	token := base64.StdEncoding.EncodeToString([]byte("|2026-03-01T00:00:00Z"))
	_, err := DecodeCursor(token)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
