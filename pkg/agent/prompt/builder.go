// Package prompt assembles all prompt text for the teacher and student
// agents. Builders are stateless line composers: absent items are dropped,
// and the line ordering contract is explicit in each Build function.
package prompt

import (
	"fmt"
	"strings"
)

// Builder accumulates prompt lines in order, dropping absent ones.
type Builder struct {
	lines []string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends one line.
func (b *Builder) Add(line string) *Builder {
	b.lines = append(b.lines, line)
	return b
}

// Addf appends one formatted line.
func (b *Builder) Addf(format string, args ...any) *Builder {
	return b.Add(fmt.Sprintf(format, args...))
}

// Maybe appends the line only when cond holds.
func (b *Builder) Maybe(cond bool, line string) *Builder {
	if cond {
		b.Add(line)
	}
	return b
}

// MaybeStr appends the line only when it is non-empty.
func (b *Builder) MaybeStr(line string) *Builder {
	if strings.TrimSpace(line) != "" {
		b.Add(line)
	}
	return b
}

// AddAll appends every non-empty line in order.
func (b *Builder) AddAll(lines []string) *Builder {
	for _, l := range lines {
		b.MaybeStr(l)
	}
	return b
}

// String joins the collected lines.
func (b *Builder) String() string {
	return strings.Join(b.lines, "\n")
}
