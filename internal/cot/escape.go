package cot

import "strings"

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeAttr(s string) string {
	return escaper.Replace(s)
}

func escapeText(s string) string {
	return escaper.Replace(s)
}
