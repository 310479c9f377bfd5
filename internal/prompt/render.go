// Package prompt renders the per-task instruction text from fixed templates
// and named bindings.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Bindings maps placeholder names to literal text.
type Bindings map[string]string

// Set binds name to value and returns the receiver for chaining.
func (b Bindings) Set(name, value string) Bindings {
	b[name] = value
	return b
}

// SetAmount binds a whole-unit amount using FormatAmount.
func (b Bindings) SetAmount(name string, amount int64) Bindings {
	b[name] = FormatAmount(amount)
	return b
}

// BindingKey returns the placeholder name under which a task's output is
// bound for its dependents.
func BindingKey(taskName string) string {
	return strings.ReplaceAll(strings.ToLower(taskName), "-", "_")
}

// FormatAmount renders n with comma thousands separators regardless of the
// process locale (50000 -> "50,000").
func FormatAmount(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

type compiled struct {
	tmpl         *template.Template
	placeholders []string
}

var templates = compileAll()

func compileAll() map[Kind]*compiled {
	out := make(map[Kind]*compiled, len(templateText))
	for kind, text := range templateText {
		t := template.Must(template.New(string(kind)).Option("missingkey=error").Parse(text))
		seen := make(map[string]bool)
		collectFields(t.Tree.Root, seen)
		names := make([]string, 0, len(seen))
		for name := range seen {
			names = append(names, name)
		}
		sort.Strings(names)
		out[kind] = &compiled{tmpl: t, placeholders: names}
	}
	return out
}

// collectFields records every top-level field referenced anywhere in the tree.
func collectFields(node parse.Node, seen map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, seen)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectFields(cmd, seen)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, seen)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			seen[n.Ident[0]] = true
		}
	case *parse.IfNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, seen)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, seen)
	}
}

func collectBranch(b *parse.BranchNode, seen map[string]bool) {
	collectFields(b.Pipe, seen)
	collectFields(b.List, seen)
	collectFields(b.ElseList, seen)
}

// Render produces the instruction text for kind. Every placeholder the
// template references must be present in bindings; values are inserted
// verbatim and never interpreted. Output depends only on the arguments.
func Render(kind Kind, bindings Bindings) (string, error) {
	c, ok := templates[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var missing []string
	for _, name := range c.placeholders {
		if _, ok := bindings[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingBindingError{Kind: kind, Names: missing}
	}

	var b strings.Builder
	if err := c.tmpl.Execute(&b, map[string]string(bindings)); err != nil {
		return "", fmt.Errorf("rendering %s: %w", kind, err)
	}
	return b.String(), nil
}

// Placeholders lists the names a kind's template references, sorted.
func Placeholders(kind Kind) ([]string, error) {
	c, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return append([]string(nil), c.placeholders...), nil
}
