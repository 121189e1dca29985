package translate

import "github.com/abadojack/whatlanggo"

// Detect guesses the ISO 639-1 code of text. It returns "" when the guess
// is not reliable.
func Detect(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
