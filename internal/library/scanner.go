// Package library lists the subtitle files under the watched directories,
// grouped by show, with their translation state.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/batch-sub-translator/internal/progress"
	"github.com/MimeLyc/batch-sub-translator/pkg/file"
)

// Filter reports whether a subtitle file should be listed.
type Filter func(path string) bool

type scannerOptions struct {
	filter       Filter
	cacheTTL     time.Duration
	outputSuffix string
}

type Option func(*scannerOptions)

func WithFilter(filter Filter) Option {
	return func(o *scannerOptions) {
		o.filter = filter
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

// WithOutputSuffix sets the suffix translations are written with, as in
// "ep1.srt" -> "ep1.zh.srt".
func WithOutputSuffix(suffix string) Option {
	return func(o *scannerOptions) {
		if suffix != "" {
			o.outputSuffix = suffix
		}
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

type Scanner struct {
	sources        []SourceConfig
	targetLanguage language.Tag
	filter         Filter
	outputSuffix   string

	mu            sync.RWMutex
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(
	sources []SourceConfig,
	targetLanguage language.Tag,
	opts ...Option,
) *Scanner {
	options := scannerOptions{
		cacheTTL:     5 * time.Second,
		outputSuffix: ".zh",
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		sources:        sources,
		targetLanguage: targetLanguage,
		filter:         options.filter,
		outputSuffix:   options.outputSuffix,
		cacheTTL:       options.cacheTTL,
	}
}

// SourcesFromDirs names each directory after its base name.
func SourcesFromDirs(dirs []string) []SourceConfig {
	ret := make([]SourceConfig, 0, len(dirs))
	for i, dir := range dirs {
		ret = append(ret, SourceConfig{
			ID:   fmt.Sprintf("dir%d", i+1),
			Name: filepath.Base(filepath.Clean(dir)),
			Path: filepath.Clean(dir),
		})
	}
	return ret
}

func (s *Scanner) TargetLanguage() string {
	s.mu.RLock()
	target := s.targetLanguage
	s.mu.RUnlock()

	base, _ := target.Base()
	return base.String()
}

func (s *Scanner) UpdateTargetLanguage(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.targetLanguage != tag {
		s.targetLanguage = tag
		s.cache = nil
		s.configVersion++
	}
	s.mu.Unlock()
	return nil
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

// resolveSeriesPath walks from the subtitle's directory upward toward
// sourcePath, looking for a tvshow.nfo file. If found, that directory is the
// series root. Otherwise falls back to the first subdirectory under sourcePath.
func resolveSeriesPath(sourcePath, subPath string) string {
	dir := filepath.Dir(subPath)
	for dir != sourcePath && strings.HasPrefix(dir, sourcePath) {
		nfo := filepath.Join(dir, "tvshow.nfo")
		if _, err := os.Stat(nfo); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	rel, err := filepath.Rel(sourcePath, filepath.Dir(subPath))
	if err != nil || rel == "." {
		return sourcePath
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return filepath.Join(sourcePath, first)
}

// resolveSeasonName returns the season directory name (e.g. "Season 1")
// if the file is nested inside a subdirectory of seriesPath.
// Returns "" if it is directly inside seriesPath.
func resolveSeasonName(seriesPath, subPath string) string {
	dir := filepath.Dir(subPath)
	if dir == seriesPath {
		return ""
	}
	rel, err := filepath.Rel(seriesPath, dir)
	if err != nil || rel == "." {
		return ""
	}
	return strings.SplitN(rel, string(filepath.Separator), 2)[0]
}

var sonarrPattern = regexp.MustCompile(`(?i)S\d+E(\d+)`)
var qualitySuffixPattern = regexp.MustCompile(`(?i)\s*[-. ](WEBRip|WEBDL|WEB-DL|BluRay|BDRip|HDRip|DVDRip|HDTV|AMZN|NF|DSNP|HULU|ATVP|PMTP|IT|DDP?\d|AAC|x264|x265|HEVC|H\.?264|H\.?265|10bit|\d{3,4}p).*$`)

// cleanEpisodeName parses Sonarr-style filenames and produces a short display name.
// e.g. "Gachiakuta - S01E15 - Clash! WEBRip-1080p" -> "E15 Clash!"
func cleanEpisodeName(basename string) string {
	m := sonarrPattern.FindStringSubmatchIndex(basename)
	if m == nil {
		return basename
	}
	epNum := basename[m[2]:m[3]]
	after := strings.TrimSpace(basename[m[1]:])
	after = strings.TrimLeft(after, "-. ")
	after = strings.TrimSpace(after)
	after = qualitySuffixPattern.ReplaceAllString(after, "")
	after = strings.TrimSpace(after)
	if after != "" {
		return "E" + epNum + " " + after
	}
	return "E" + epNum
}

func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	sources := append([]SourceConfig(nil), s.sources...)
	targetLanguage := s.targetLanguage
	s.mu.RUnlock()

	ret := &Library{
		Sources: make([]Source, 0, len(sources)),
		Items:   make([]Item, 0),
		Entries: make([]Entry, 0),
	}

	for _, sourceCfg := range sources {
		if sourceCfg.Path == "" {
			continue
		}
		if _, err := os.Stat(sourceCfg.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		source := Source{
			ID:   sourceCfg.ID,
			Name: sourceCfg.Name,
			Path: sourceCfg.Path,
		}
		itemIdxByPath := make(map[string]int)

		subFiles, err := findSubtitleFiles(sourceCfg.Path)
		if err != nil {
			return nil, err
		}
		for _, subPath := range subFiles {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			if s.filter != nil && !s.filter(subPath) {
				continue
			}

			itemPath := resolveSeriesPath(sourceCfg.Path, subPath)
			itemIdx, ok := itemIdxByPath[itemPath]
			if !ok {
				ret.Items = append(ret.Items, Item{
					ID:       sourceCfg.ID + "|" + itemPath,
					SourceID: sourceCfg.ID,
					Name:     filepath.Base(itemPath),
					Path:     itemPath,
				})
				itemIdx = len(ret.Items) - 1
				itemIdxByPath[itemPath] = itemIdx
			}

			ret.Entries = append(ret.Entries, s.entry(sourceCfg.ID, ret.Items[itemIdx], subPath, targetLanguage))
			ret.Items[itemIdx].FileCount++
		}

		source.ItemCount = len(itemIdxByPath)
		ret.Sources = append(ret.Sources, source)
	}

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: cloneLibrary(ret),
		}
	}
	s.mu.Unlock()

	return ret, nil
}

func (s *Scanner) entry(sourceID string, item Item, subPath string, target language.Tag) Entry {
	stem := file.TrimExt(filepath.Base(subPath))
	token := languageToken(stem)
	output := file.AddSuffix(subPath, s.outputSuffix)

	e := Entry{
		ID:         subPath,
		SourceID:   sourceID,
		ItemID:     item.ID,
		Name:       cleanEpisodeName(stem),
		Season:     resolveSeasonName(item.Path, subPath),
		Path:       subPath,
		Language:   normalizeLangCode(token),
		OutputPath: output,
	}
	e.Translated = (token != "" && isTargetLanguage(token, target)) || file.Exists(output)
	if !e.Translated {
		e.Progress = runProgress(output)
	}
	e.Translatable = !e.Translated
	return e
}

// runProgress reads the progress file of an interrupted run, if any.
func runProgress(output string) *Progress {
	layout := progress.Layout{OutputBase: file.TrimExt(output)}
	if !file.Exists(layout.ProgressPath()) {
		return nil
	}
	st, err := progress.Inspect(layout, 0)
	if err != nil || st.TotalBatches == 0 {
		return nil
	}
	return &Progress{Completed: len(st.CompletedBatches), Total: st.TotalBatches}
}

func findSubtitleFiles(root string) ([]string, error) {
	ret := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".srt") {
			ret = append(ret, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// languageToken returns the last dot-separated part of stem when it names a
// language, as in "ep01.eng".
func languageToken(stem string) string {
	i := strings.LastIndexByte(stem, '.')
	if i < 0 {
		return ""
	}
	token := strings.ToLower(stem[i+1:])
	if isLanguageToken(token) {
		return token
	}
	return ""
}

// normalizeLangCode validates a language token and returns its normalized
// ISO 639-1 base code (e.g. "fre"→"fr", "eng"→"en", "chi"→"zh").
// Returns "" if the token is not a recognized language code.
func normalizeLangCode(token string) string {
	if token == "" {
		return ""
	}
	tag, err := language.Parse(token)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func isTargetLanguage(token string, target language.Tag) bool {
	token = strings.ToLower(strings.ReplaceAll(token, "_", "-"))
	if token == "" {
		return false
	}

	base, _ := target.Base()
	targetBase := strings.ToLower(base.String())
	if token == targetBase || strings.HasPrefix(token, targetBase+"-") {
		return true
	}

	// common aliases
	switch targetBase {
	case "zh":
		return token == "chi" || token == "chs" || token == "cht" || token == "zho"
	case "en":
		return token == "eng"
	case "ja":
		return token == "jpn"
	}

	return false
}

func isLanguageToken(token string) bool {
	if token == "" {
		return false
	}
	if normalizeLangCode(token) != "" {
		return true
	}
	switch token {
	case "chs", "cht":
		return true
	default:
		return false
	}
}

func cloneLibrary(src *Library) *Library {
	if src == nil {
		return nil
	}

	dst := &Library{
		Sources: make([]Source, len(src.Sources)),
		Items:   make([]Item, len(src.Items)),
		Entries: make([]Entry, len(src.Entries)),
	}
	copy(dst.Sources, src.Sources)
	copy(dst.Items, src.Items)
	copy(dst.Entries, src.Entries)

	for i := range dst.Entries {
		if p := src.Entries[i].Progress; p != nil {
			cp := *p
			dst.Entries[i].Progress = &cp
		}
	}
	return dst
}
