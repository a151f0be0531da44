package attribution

import (
	"strings"
	"unicode"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"golang.org/x/net/html"
)

// feedbackClass marks the "Improve this map" link hosted TileJSON documents
// append; it is not a credit.
const feedbackClass = "mapbox-improve-map"

// FromHTML converts one attribution string into entries. Each anchor becomes
// an entry with its href; text outside anchors becomes title-only entries.
// A string without markup yields a single entry.
func FromHTML(s string) []domain.AttributionInfo {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var (
		out      []domain.AttributionInfo
		inAnchor bool
		skip     bool
		href     string
		text     strings.Builder
	)

	flushText := func() {
		if title := cleanTitle(text.String()); title != "" {
			out = append(out, domain.AttributionInfo{Title: title})
		}
		text.Reset()
	}

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if !inAnchor {
				flushText()
			}
			return out
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || inAnchor {
				continue
			}
			flushText()
			inAnchor, skip, href = true, false, ""
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "href":
					href = strings.TrimSpace(string(val))
				case "class":
					skip = strings.Contains(string(val), feedbackClass)
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) != "a" || !inAnchor {
				continue
			}
			title := cleanTitle(text.String())
			text.Reset()
			inAnchor = false
			if skip || title == "" {
				continue
			}
			out = append(out, domain.AttributionInfo{Title: title, URL: href})
		case html.TextToken:
			text.Write(z.Text())
		}
	}
}

// cleanTitle collapses whitespace and drops text made only of separators
// such as "|" or "&".
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '©' {
			return s
		}
	}
	return ""
}
