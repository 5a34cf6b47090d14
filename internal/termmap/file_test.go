package termmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNaming(t *testing.T) {
	tests := []struct {
		source, target string
		want           string
	}{
		{"en", "zh", "term_map.en-zh.json"},
		{"en-US", "zh-Hans", "term_map.en-zh.json"},
		{"ja", "zh-CN", "term_map.ja-zh.json"},
		{"pt-BR", "en", "term_map.pt-en.json"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.source, tt.target))
		})
	}

	assert.Equal(t, filepath.Join("shows", "Frieren", "term_map.en-zh.json"),
		FilePath(filepath.Join("shows", "Frieren"), "en", "zh-CN"))
}

func TestFindInAncestors(t *testing.T) {
	show := t.TempDir()
	episodes := filepath.Join(show, "Season 01", "extras")
	require.NoError(t, os.MkdirAll(episodes, 0o755))

	assert.Empty(t, FindInAncestors(episodes, "en", "zh"))

	showMap := FilePath(show, "en", "zh")
	require.NoError(t, Save(showMap, TermMap{"Frieren": "芙莉莲"}))
	assert.Equal(t, showMap, FindInAncestors(episodes, "en", "zh"))
	assert.Empty(t, FindInAncestors(episodes, "en", "ja"))

	seasonMap := FilePath(filepath.Join(show, "Season 01"), "en", "zh")
	require.NoError(t, Save(seasonMap, TermMap{"Himmel": "辛美尔"}))
	assert.Equal(t, seasonMap, FindInAncestors(episodes, "en", "zh"))
	assert.Equal(t, showMap, FindInAncestors(show, "en", "zh"))

	// a directory with the map's name is not a map
	other := t.TempDir()
	require.NoError(t, os.Mkdir(FilePath(other, "en", "zh"), 0o755))
	assert.Empty(t, FindInAncestors(other, "en", "zh"))
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "term_map.en-zh.json")
	terms := TermMap{"Okarun": "奥卡轮", "Turbo Granny": "涡轮婆婆"}

	require.NoError(t, Save(path, terms))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"Okarun\": \"奥卡轮\"")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, terms, loaded)
}

func TestLoadDropsBlankEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{" Okarun ":" 奥卡轮 ","":"x","Seiko":"  "}`), 0o644))

	terms, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TermMap{"Okarun": "奥卡轮"}, terms)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`["not", "an", "object"]`), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse term map")
}
