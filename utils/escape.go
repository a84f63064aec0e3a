package utils

import "strings"

// textEscaper covers the characters that matter inside HTML text and attributes.
var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

// EscapeText HTML-escapes user text so it renders literally. Nothing is removed.
func EscapeText(input string) string {
	return textEscaper.Replace(input)
}
