// Package termmap holds per-show terminology: fixed translations for names
// and recurring terms, kept in a JSON file next to the subtitles.
package termmap

// TermMap maps source language terms to target language terms.
type TermMap map[string]string
