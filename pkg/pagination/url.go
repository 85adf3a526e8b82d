package pagination

import (
	"strconv"
	"strings"
)

const pageSegment = "/page/"

// PageFromURL extracts the page number from URLs like
// https://example.com/politics/page/3/. Anything it cannot read is page 1.
func PageFromURL(url string) int {
	idx := strings.Index(url, pageSegment)
	if idx < 0 {
		return 1
	}
	token := url[idx+len(pageSegment):]
	if end := strings.IndexAny(token, "/?#"); end >= 0 {
		token = token[:end]
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
