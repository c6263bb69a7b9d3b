package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPromptProvider_Defaults(t *testing.T) {
	p := testPrompts(t)
	for _, key := range promptKeys {
		assert.NotEmpty(t, p.Get(key, nil), key)
	}
	assert.Empty(t, p.Get("missing", nil))
}

func TestPromptProvider_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "speech.md"), []byte("\nSay it, {name}!\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world.md"), []byte("   "), 0o644))

	p, err := NewPromptProvider(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "Say it, Анна!", p.Get(PromptSpeech, map[string]string{"name": "Анна"}))
	assert.Contains(t, p.Get(PromptWorld, nil), "CINEMATIC NARRATOR", "blank override keeps the default")
}
