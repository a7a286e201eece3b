// Package fgraph compiles timeline state into ffmpeg filter graphs. The
// graph is modeled as typed stages with declared input pads and an output
// pad; serialization to ffmpeg's filter_complex syntax is an isolated final
// step, so compile logic is testable without string matching.
package fgraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is one filter invocation inside a stage chain.
type Filter struct {
	Name string
	Args string
}

func (f Filter) String() string {
	if f.Args == "" {
		return f.Name
	}
	return f.Name + "=" + f.Args
}

// Stage is one labeled node of the graph: zero or more input pads, a chain of
// comma-joined filters, and a single output pad. A stage with no inputs is a
// source filter (color, anullsrc).
type Stage struct {
	Inputs  []string
	Filters []Filter
	Output  string
}

// Graph is an ordered list of stages plus a label allocator.
type Graph struct {
	stages []Stage
	seq    map[string]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{seq: make(map[string]int)}
}

// Label allocates a fresh pad label with the given prefix ("v" -> "v0", "v1").
func (g *Graph) Label(prefix string) string {
	n := g.seq[prefix]
	g.seq[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// Add appends a stage to the graph.
func (g *Graph) Add(stage Stage) {
	g.stages = append(g.stages, stage)
}

// Chain appends a stage with the given inputs, filters and a freshly
// allocated output label, which it returns.
func (g *Graph) Chain(prefix string, inputs []string, filters ...Filter) string {
	out := g.Label(prefix)
	g.Add(Stage{Inputs: inputs, Filters: filters, Output: out})
	return out
}

// Stages returns the graph's stages in order.
func (g *Graph) Stages() []Stage {
	return g.stages
}

// Empty reports whether the graph has no stages.
func (g *Graph) Empty() bool {
	return len(g.stages) == 0
}

// String serializes the graph to ffmpeg filter_complex syntax:
// stages joined by ";", pads in brackets, filters comma-chained.
func (g *Graph) String() string {
	var b strings.Builder
	for i, st := range g.stages {
		if i > 0 {
			b.WriteString(";")
		}
		for _, in := range st.Inputs {
			b.WriteString("[")
			b.WriteString(in)
			b.WriteString("]")
		}
		for j, f := range st.Filters {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString(f.String())
		}
		b.WriteString("[")
		b.WriteString(st.Output)
		b.WriteString("]")
	}
	return b.String()
}

// seconds formats a seconds value the way ffmpeg filter arguments expect,
// without a trailing exponent or superfluous zeros.
func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
