package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOllamaBaseURLStripsTrailingSlashAndApiSuffix(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL("http://localhost:11434/api/"))
	assert.Equal(t, "http://localhost:11434", normalizeOllamaBaseURL("http://localhost:11434"))
}

func TestOllamaAvailableRequiresBaseURLAndModel(t *testing.T) {
	o := NewOllama("", "llama3", 0)
	assert.False(t, o.Available())
	o2 := NewOllama("http://localhost:11434", "", 0)
	assert.False(t, o2.Available())
	o3 := NewOllama("http://localhost:11434", "llama3", 0)
	assert.True(t, o3.Available())
}

func TestGigaChatAvailableRequiresAuthKeyBaseURLAndModel(t *testing.T) {
	g := NewGigaChat("https://oauth", "https://api", "", "GigaChat", "SCOPE", "gigachat:token", 0, nil)
	assert.False(t, g.Available())
	g2 := NewGigaChat("https://oauth", "https://api", "key", "GigaChat", "SCOPE", "gigachat:token", 0, nil)
	assert.True(t, g2.Available())
}
