package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
keywords:
  'paypal': 70
  'login': 25
tlds:
  '.tk':
  '.gq':
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseSuspicious_TLDForms(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		expected TLDSet
	}{
		{
			name:     "Mapping with null values",
			yaml:     "tlds:\n  '.tk':\n  '.ml':\n",
			expected: TLDSet{".tk": {}, ".ml": {}},
		},
		{
			name:     "Sequence",
			yaml:     "tlds: ['.tk', '.ml']\n",
			expected: TLDSet{".tk": {}, ".ml": {}},
		},
		{
			name:     "Missing section",
			yaml:     "keywords:\n  'a': 1\n",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseSuspicious([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, doc.TLDs)
		})
	}
}

func TestParseSuspicious_Invalid(t *testing.T) {
	_, err := ParseSuspicious([]byte("tlds: 12\n"))
	assert.Error(t, err)

	_, err = ParseSuspicious([]byte("keywords: [unclosed\n"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base, err := ParseSuspicious([]byte(baseYAML))
	require.NoError(t, err)

	t.Run("Upsert keywords and union TLDs", func(t *testing.T) {
		override, err := ParseSuspicious([]byte("keywords:\n  'login': 40\n  'Wallet': 25\ntlds:\n  '.xyz':\n"))
		require.NoError(t, err)

		ctx := Merge(base, override)
		assert.Equal(t, map[string]int{"paypal": 70, "login": 40, "wallet": 25}, ctx.Keywords)
		assert.Len(t, ctx.TLDs, 3)
		assert.Contains(t, ctx.TLDs, ".xyz")
		assert.Contains(t, ctx.TLDs, ".tk")
	})

	t.Run("Override replaces base", func(t *testing.T) {
		override, err := ParseSuspicious([]byte("override_suspicious.yaml: true\nkeywords:\n  'acme': 70\n"))
		require.NoError(t, err)

		ctx := Merge(base, override)
		assert.Equal(t, map[string]int{"acme": 70}, ctx.Keywords)
		assert.Empty(t, ctx.TLDs)
	})

	t.Run("Null sections are no-ops", func(t *testing.T) {
		override, err := ParseSuspicious([]byte("override_suspicious.yaml: false\nkeywords:\ntlds:\n"))
		require.NoError(t, err)

		ctx := Merge(base, override)
		assert.Equal(t, map[string]int{"paypal": 70, "login": 25}, ctx.Keywords)
		assert.Len(t, ctx.TLDs, 2)
	})
}

func TestLoadScoringContext(t *testing.T) {
	dir := t.TempDir()
	basePath := writeFile(t, dir, "suspicious.yaml", baseYAML)

	t.Run("Missing override file", func(t *testing.T) {
		ctx, err := LoadScoringContext(basePath, filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 70, ctx.Keywords["paypal"])
	})

	t.Run("Override file merged", func(t *testing.T) {
		overridePath := writeFile(t, dir, "external.yaml", "keywords:\n  'paypal': 80\n")
		ctx, err := LoadScoringContext(basePath, overridePath)
		require.NoError(t, err)
		assert.Equal(t, 80, ctx.Keywords["paypal"])
	})

	t.Run("Missing base file", func(t *testing.T) {
		_, err := LoadScoringContext(filepath.Join(dir, "absent.yaml"), "")
		assert.Error(t, err)
	})

	t.Run("Bundled configuration", func(t *testing.T) {
		ctx, err := LoadScoringContext("../../configs/suspicious.yaml", "../../configs/external.yaml")
		require.NoError(t, err)
		assert.Equal(t, 70, ctx.Keywords["paypal"])
		assert.Contains(t, ctx.TLDs, ".tk")
	})
}
