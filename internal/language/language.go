// Package language holds the closed table of languages the relay accepts.
package language

import (
	"sort"
	"strings"
)

// Default is used when a connection has not chosen a supported language.
const Default = "ru"

var supported = map[string]string{
	"ru": "Русский",
	"en": "English",
	"es": "Español",
	"fr": "Français",
	"de": "Deutsch",
	"it": "Italiano",
	"pt": "Português",
	"zh": "中文",
	"ja": "日本語",
	"ko": "한국어",
	"ar": "العربية",
	"tr": "Türkçe",
	"uk": "Українська",
	"kk": "Қазақша",
}

// Language is one entry of the supported table
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Normalize lower-cases and trims a language code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// IsSupported reports whether code is in the table.
func IsSupported(code string) bool {
	_, ok := supported[Normalize(code)]
	return ok
}

// Name returns the display name for code, or "" when unsupported.
func Name(code string) string {
	return supported[Normalize(code)]
}

// OrDefault returns the normalized code when supported and fallback otherwise.
func OrDefault(code, fallback string) string {
	code = Normalize(code)
	if IsSupported(code) {
		return code
	}
	return fallback
}

// All returns the table sorted by code.
func All() []Language {
	languages := make([]Language, 0, len(supported))
	for code, name := range supported {
		languages = append(languages, Language{Code: code, Name: name})
	}
	sort.Slice(languages, func(i, j int) bool {
		return languages[i].Code < languages[j].Code
	})
	return languages
}
