package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/bharatsindha/icon-media-web-crawler/internal/keyword"
)

// titleSeparators in precedence order; the first one present splits the title.
var titleSeparators = []string{" | ", " :: ", " — ", " – ", " - ", " » "}

// brandMaxWords bounds how long a trailing segment may be and still read as a
// company name.
const brandMaxWords = 3

// cleanTitle strips a trailing "| Company Name" style suffix. The last segment
// is dropped when it is shorter than the first or looks like a short proper
// name; the first segment is then returned.
func cleanTitle(title string) string {
	title = keyword.DisplayText(title)
	for _, sep := range titleSeparators {
		if !strings.Contains(title, sep) {
			continue
		}
		var parts []string
		for _, part := range strings.Split(title, sep) {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) < 2 {
			return strings.Join(parts, "")
		}
		first, last := parts[0], parts[len(parts)-1]
		if differsMarkedly(first, last) {
			return first
		}
		return title
	}
	return title
}

func differsMarkedly(first, last string) bool {
	if utf8.RuneCountInString(last) < utf8.RuneCountInString(first) {
		return true
	}
	return keyword.WordCount(last) <= brandMaxWords && keyword.IsMostlyCapitalized(last)
}
