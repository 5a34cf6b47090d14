// Package showinfo reads Kodi-style NFO metadata that sits next to
// subtitle files and renders it as background for the translation prompt.
package showinfo

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/batch-sub-translator/pkg/file"
)

// maxActors limits the cast listed in the rendered text.
const maxActors = 5

type Actor struct {
	Name  string
	Role  string
	Order int
}

// Show is the subset of an NFO document useful to a translator.
type Show struct {
	Title         string
	OriginalTitle string
	Plot          string
	Genres        []string
	Studio        string
	Year          int
	Season        int
	Actors        []Actor
}

// xmlShow covers both <tvshow> and <movie> roots; the root name is not
// checked.
type xmlShow struct {
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	Plot          string   `xml:"plot"`
	Genres        []string `xml:"genre"`
	Studio        string   `xml:"studio"`
	Year          int      `xml:"year"`
	Season        int      `xml:"season"`
	Actors        []struct {
		Name  string `xml:"name"`
		Role  string `xml:"role"`
		Order int    `xml:"order"`
	} `xml:"actor"`
}

// Read parses the NFO file at path.
func Read(path string) (*Show, error) {
	if !strings.EqualFold(filepath.Ext(path), ".nfo") {
		return nil, fmt.Errorf("file extension must be .nfo: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nfo: %w", err)
	}

	var raw xmlShow
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse nfo %s: %w", path, err)
	}

	show := &Show{
		Title:         strings.TrimSpace(raw.Title),
		OriginalTitle: strings.TrimSpace(raw.OriginalTitle),
		Plot:          strings.TrimSpace(raw.Plot),
		Studio:        strings.TrimSpace(raw.Studio),
		Year:          raw.Year,
		Season:        raw.Season,
	}
	for _, g := range raw.Genres {
		if g = strings.TrimSpace(g); g != "" {
			show.Genres = append(show.Genres, g)
		}
	}
	for _, a := range raw.Actors {
		if name := strings.TrimSpace(a.Name); name != "" {
			show.Actors = append(show.Actors, Actor{
				Name:  name,
				Role:  strings.TrimSpace(a.Role),
				Order: a.Order,
			})
		}
	}
	return show, nil
}

// Find looks for metadata describing the subtitle at subPath: an NFO with
// the same name as the subtitle, then movie.nfo beside it, then the closest
// tvshow.nfo at most two directories up. It returns "" when none exists.
func Find(subPath string) string {
	dir := filepath.Dir(subPath)
	stem := file.TrimExt(filepath.Base(subPath))

	candidates := []string{filepath.Join(dir, stem+".nfo")}
	// "ep01.eng.srt" is described by "ep01.nfo"
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		candidates = append(candidates, filepath.Join(dir, stem[:i]+".nfo"))
	}
	candidates = append(candidates, filepath.Join(dir, "movie.nfo"))
	for i := 0; i < 3; i++ {
		candidates = append(candidates, filepath.Join(dir, "tvshow.nfo"))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	for _, c := range candidates {
		if file.Exists(c) {
			return c
		}
	}
	return ""
}

// Lookup finds and reads the metadata for subPath. A missing file returns
// nil without error.
func Lookup(subPath string) (*Show, error) {
	path := Find(subPath)
	if path == "" {
		return nil, nil
	}
	show, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return show, err
}

// Text renders the show as prompt background. A nil or empty show renders
// as "".
func (s *Show) Text() string {
	if s == nil {
		return ""
	}

	var sb strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&sb, "Show Title: %s\n", s.Title)
	}
	if s.OriginalTitle != "" && s.OriginalTitle != s.Title {
		fmt.Fprintf(&sb, "Original Title: %s\n", s.OriginalTitle)
	}
	if len(s.Genres) > 0 {
		fmt.Fprintf(&sb, "Genres: %s\n", strings.Join(s.Genres, ", "))
	}
	if s.Studio != "" {
		fmt.Fprintf(&sb, "Production Studio: %s\n", s.Studio)
	}
	if s.Year > 0 {
		fmt.Fprintf(&sb, "Year: %d\n", s.Year)
	}
	if s.Season > 0 {
		fmt.Fprintf(&sb, "Season: %d\n", s.Season)
	}
	if len(s.Actors) > 0 {
		sb.WriteString("Main Cast:\n")
		for i, a := range s.Actors {
			if i >= maxActors {
				break
			}
			if a.Role != "" {
				fmt.Fprintf(&sb, "- %s as %s\n", a.Name, a.Role)
			} else {
				fmt.Fprintf(&sb, "- %s\n", a.Name)
			}
		}
	}
	if s.Plot != "" {
		fmt.Fprintf(&sb, "\nPlot: %s", s.Plot)
	}
	return strings.TrimSpace(sb.String())
}
