package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

// PlainText strips all markup from caller supplied text such as reward descriptions.
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(input)))
}
