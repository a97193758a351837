package template

import "strings"

// node is implemented by every element of a parsed template.
type node interface {
	render(ctx *evalContext, out *strings.Builder) error
}

type textNode struct{ text string }

type outputNode struct {
	expr    expr
	filters []filterCall
}

type filterCall struct {
	name string
	args []expr
}

type ifBranch struct {
	cond expr
	body []node
}

type ifNode struct {
	branches []ifBranch // first is "if", rest are "elif"
	elseBody []node     // nil if no else
}

type forNode struct {
	varName string
	listVar expr
	body    []node
}
