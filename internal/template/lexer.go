// Package template implements the Template Renderer: a small Jinja-like
// language used to render deployment prompt templates against run
// variables. Delimiters are {{ expr }} for output and {% tag %} for
// control flow (if/elif/else/endif, for/endfor); the syntax stdlib
// text/template cannot express, so this is a hand-rolled lexer and
// recursive-descent parser rather than a text/template wrapper.
package template

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenOutputOpen
	tokenOutputClose
	tokenTagOpen
	tokenTagClose
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits src into raw text runs and {{ }}/{% %} delimited runs. It
// does not parse expressions; the parser consumes the contents between
// open/close tokens.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		openExpr := strings.Index(src[i:], "{{")
		openTag := strings.Index(src[i:], "{%")

		var next int
		var isTag bool
		switch {
		case openExpr == -1 && openTag == -1:
			tokens = append(tokens, token{kind: tokenText, text: src[i:], pos: i})
			i = len(src)
			continue
		case openExpr == -1:
			next, isTag = openTag, true
		case openTag == -1:
			next, isTag = openExpr, false
		case openExpr < openTag:
			next, isTag = openExpr, false
		default:
			next, isTag = openTag, true
		}

		if next > 0 {
			tokens = append(tokens, token{kind: tokenText, text: src[i : i+next], pos: i})
		}
		i += next

		closeDelim := "}}"
		openKind, closeKind := tokenOutputOpen, tokenOutputClose
		if isTag {
			closeDelim = "%}"
			openKind, closeKind = tokenTagOpen, tokenTagClose
		}

		closeIdx := strings.Index(src[i:], closeDelim)
		if closeIdx == -1 {
			return nil, fmt.Errorf("template: unterminated %q starting at offset %d", src[i:i+2], i)
		}
		body := src[i+2 : i+closeIdx]
		tokens = append(tokens, token{kind: openKind, pos: i})
		tokens = append(tokens, token{kind: tokenText, text: strings.TrimSpace(body), pos: i + 2})
		tokens = append(tokens, token{kind: closeKind, pos: i + closeIdx})
		i += closeIdx + len(closeDelim)
	}
	tokens = append(tokens, token{kind: tokenEOF, pos: len(src)})
	return tokens, nil
}
