package feed

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowercase = cases.Lower(language.Und)

// ExtractHostname returns the lowercased hostname of a URL-like string,
// or "" when the input is empty or unparseable. Bare domains without a
// scheme are accepted.
func ExtractHostname(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	candidate := trimmed
	if !strings.Contains(trimmed, "://") {
		candidate = "https://" + trimmed
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return ""
	}

	return strings.ToLower(parsed.Hostname())
}

// NormalizeTitle lowercases a title and collapses every run of
// punctuation, symbols and whitespace into a single space. It is
// codepoint-aware so titles in any script normalize consistently.
func NormalizeTitle(title string) string {
	lowered := lowercase.String(title)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// DedupKey identifies a story across feeds: normalized title plus the
// effective domain. Items whose source has no usable hostname fall back
// to the link's hostname, then to "unknown".
func DedupKey(title, source, link string) string {
	host := ExtractHostname(source)
	if host == "" {
		host = ExtractHostname(link)
	}
	if host == "" {
		host = "unknown"
	}

	return NormalizeTitle(title) + "::" + host
}
