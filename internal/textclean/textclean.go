// Package textclean normalizes free text before it is stored.
//
// Stored text is plain: markup is removed, character references are decoded
// and the result is NFC-normalized. Escaping for display is left to whoever
// renders the text.
package textclean

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Clean strips markup from s and returns its normalized text content.
// Content of script and style elements is dropped. Runs of whitespace
// collapse to a single space and the result is trimmed.
func Clean(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(norm.NFC.String(s))
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF, or a malformed tail the tokenizer gave up on.
			return collapse(norm.NFC.String(b.String()))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if dropsContent(name) {
				skip++
				continue
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if dropsContent(name) {
				if skip > 0 {
					skip--
				}
				continue
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func dropsContent(tag []byte) bool {
	switch string(tag) {
	case "script", "style":
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
