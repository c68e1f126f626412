package media

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_SaveAndOpen(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	name, err := store.Save(strings.NewReader("voice payload"), ".webm")
	assert.NoError(t, err, "expected save to succeed")
	assert.True(t, strings.HasSuffix(name, ".webm"), "expected stored name to keep the extension")
	assert.NotContains(t, name, "/", "expected stored name to be a bare filename")

	f, err := store.Open(name)
	assert.NoError(t, err, "expected open to succeed")
	defer f.Close()

	data, err := io.ReadAll(f)
	assert.NoError(t, err)
	assert.Equal(t, "voice payload", string(data), "expected payload to round-trip")
}

func TestStore_SaveTruncatesOversizedPayload(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	name, err := store.Save(strings.NewReader(strings.Repeat("a", MaxVoicePayloadBytes+100)), ".webm")
	assert.NoError(t, err)

	f, err := store.Open(name)
	assert.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	assert.NoError(t, err)
	assert.Len(t, data, MaxVoicePayloadBytes, "expected payload to be capped")
}

func TestStore_OpenRejectsPathEscapes(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	tcases := []string{
		"../store.go",
		"/etc/passwd",
		"a/b.webm",
	}

	for _, name := range tcases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open(name)
			assert.Error(t, err, "expected open to reject %q", name)
		})
	}
}
