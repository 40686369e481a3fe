package strategy

import (
	"golang.org/x/text/language"
)

var placeholderTags = []language.Tag{
	language.English, // first entry is the matcher's fallback
	language.Japanese,
}

var placeholderTexts = []string{
	"New notification",
	"新しい通知があります",
}

var placeholderMatcher = language.NewMatcher(placeholderTags)

// Placeholder returns the localized masked body for a BCP 47 locale string.
// Unknown or malformed locales get the English text.
func Placeholder(locale string) string {
	if locale == "" {
		return placeholderTexts[0]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return placeholderTexts[0]
	}
	_, idx, conf := placeholderMatcher.Match(tag)
	if conf == language.No {
		return placeholderTexts[0]
	}
	return placeholderTexts[idx]
}
