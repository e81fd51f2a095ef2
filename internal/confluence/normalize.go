package confluence

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Confluence stores page bodies in its "storage" XHTML format. Code macros
// carry their literal source inside <ac:plain-text-body> CDATA sections.
var (
	codeBody      = regexp.MustCompile(`(?s)<ac:plain-text-body><!\[CDATA\[(.*?)\]\]></ac:plain-text-body>`)
	xmlComments   = regexp.MustCompile(`(?s)<!--.*?-->`)
	tags          = regexp.MustCompile(`(?s)<[^>]*>`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// StorageToText converts a storage-format page body into plain text.
// Code-macro bodies are lifted out before markup stripping so their content
// survives verbatim; every tag boundary becomes a line break, consecutive
// blank lines collapse to one, and the result is trimmed. An empty body
// yields an empty string.
func StorageToText(storage string) string {
	if storage == "" {
		return ""
	}

	// Pull literal code out of the markup first. Placeholders keep angle
	// brackets and entities inside code from being treated as markup.
	var code []string
	doc := codeBody.ReplaceAllStringFunc(storage, func(m string) string {
		sub := codeBody.FindStringSubmatch(m)
		code = append(code, sub[1])
		return fmt.Sprintf("\n\x00code:%d\x00\n", len(code)-1)
	})

	doc = xmlComments.ReplaceAllString(doc, "")
	doc = tags.ReplaceAllString(doc, "\n")
	doc = html.UnescapeString(doc)

	for i, c := range code {
		doc = strings.Replace(doc, fmt.Sprintf("\x00code:%d\x00", i), c, 1)
	}

	doc = multiNewlines.ReplaceAllString(doc, "\n\n")
	return strings.TrimSpace(doc)
}
