package template

import (
	"fmt"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

// Parse compiles src into a Template ready for repeated Render calls.
func Parse(src string) (*Template, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	nodes, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, fmt.Errorf("template: unexpected trailing content at offset %d", p.peek().pos)
	}
	return &Template{nodes: nodes, source: src}, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// parseNodes consumes nodes until EOF or until a tag in stopTags is seen
// (without consuming that tag), used by if/for bodies to know where to
// stop.
func (p *parser) parseNodes(stopTags []string) ([]node, error) {
	var nodes []node
	for {
		switch p.peek().kind {
		case tokenEOF:
			return nodes, nil
		case tokenText:
			nodes = append(nodes, textNode{text: p.next().text})
		case tokenOutputOpen:
			p.next()
			body := p.next().text
			if p.peek().kind != tokenOutputClose {
				return nil, fmt.Errorf("template: malformed output block %q", body)
			}
			p.next()
			baseExpr, filters, err := parseOutputExpr(body)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, outputNode{expr: baseExpr, filters: filters})
		case tokenTagOpen:
			tagStart := p.pos
			p.next()
			body := p.next().text
			if p.peek().kind != tokenTagClose {
				return nil, fmt.Errorf("template: malformed tag block %q", body)
			}
			p.next()

			word, rest := splitTagWord(body)
			for _, stop := range stopTags {
				if word == stop {
					p.pos = tagStart
					return nodes, nil
				}
			}

			switch word {
			case "if":
				n, err := p.parseIf(rest)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			case "for":
				n, err := p.parseFor(rest)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			default:
				return nil, fmt.Errorf("template: unexpected tag %q", word)
			}
		}
	}
}

func splitTagWord(body string) (word, rest string) {
	body = strings.TrimSpace(body)
	word, rest, _ = strings.Cut(body, " ")
	return word, strings.TrimSpace(rest)
}

func (p *parser) parseIf(condSrc string) (node, error) {
	cond, err := parseExpr(condSrc)
	if err != nil {
		return nil, fmt.Errorf("template: if condition: %w", err)
	}

	n := ifNode{}
	body, err := p.parseNodes([]string{"elif", "else", "endif"})
	if err != nil {
		return nil, err
	}
	n.branches = append(n.branches, ifBranch{cond: cond, body: body})

	for {
		tag := p.peek()
		if tag.kind != tokenTagOpen {
			return nil, fmt.Errorf("template: unterminated if block")
		}
		p.next()
		raw := p.next().text
		p.next() // tagClose
		word, rest := splitTagWord(raw)

		switch word {
		case "elif":
			cond, err := parseExpr(rest)
			if err != nil {
				return nil, fmt.Errorf("template: elif condition: %w", err)
			}
			body, err := p.parseNodes([]string{"elif", "else", "endif"})
			if err != nil {
				return nil, err
			}
			n.branches = append(n.branches, ifBranch{cond: cond, body: body})
		case "else":
			body, err := p.parseNodes([]string{"endif"})
			if err != nil {
				return nil, err
			}
			n.elseBody = body
		case "endif":
			return n, nil
		default:
			return nil, fmt.Errorf("template: unexpected tag %q inside if block", word)
		}
	}
}

func (p *parser) parseFor(headerSrc string) (node, error) {
	varName, rest, ok := strings.Cut(headerSrc, " in ")
	if !ok {
		return nil, fmt.Errorf("template: malformed for header %q, want \"x in list\"", headerSrc)
	}
	varName = strings.TrimSpace(varName)
	listExpr, err := parseLiteralOrPath(strings.TrimSpace(rest))
	if err != nil {
		return nil, fmt.Errorf("template: for list expression: %w", err)
	}

	body, err := p.parseNodes([]string{"endfor"})
	if err != nil {
		return nil, err
	}

	tag := p.peek()
	if tag.kind != tokenTagOpen {
		return nil, fmt.Errorf("template: unterminated for block")
	}
	p.next()
	raw := p.next().text
	p.next()
	word, _ := splitTagWord(raw)
	if word != "endfor" {
		return nil, fmt.Errorf("template: expected endfor, got %q", word)
	}

	return forNode{varName: varName, listVar: listExpr, body: body}, nil
}
