package library

type SourceConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	ItemCount int    `json:"item_count"`
}

// Item is a show or movie folder holding subtitle files.
type Item struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	FileCount int    `json:"file_count"`
}

// Progress is the state of an unfinished run for an entry's output.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Entry is one source subtitle file.
type Entry struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Season   string `json:"season"`
	Path     string `json:"path"`
	// Language comes from a language token in the file name, if any.
	Language   string `json:"language,omitempty"`
	OutputPath string `json:"output_path"`
	// Translated is set when the output exists or the file is already in
	// the target language.
	Translated   bool      `json:"translated"`
	Progress     *Progress `json:"progress,omitempty"`
	Translatable bool      `json:"translatable"`
}

type Library struct {
	Sources []Source `json:"sources"`
	Items   []Item   `json:"items"`
	Entries []Entry  `json:"entries"`
}
