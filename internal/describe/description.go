// Package describe projects features, scenarios and steps into a tree of
// descriptions for a host test runner.
//
// Every scenario and step node carries an Identity derived from its source
// location, so external tooling can correlate nodes across runs and select
// them again through line filters or rerun files.
package describe

import (
	"fmt"
	"io"
	"strings"
)

// Description is a node of the description tree.
type Description struct {
	// DisplayName is shown by the host runner.
	DisplayName string
	// ClassName groups leaf nodes under their feature when steps are not
	// described.
	ClassName string
	// Identity is nil for feature and suite nodes.
	Identity Identity
	Children []*Description
}

// IsSuite reports whether the node has children.
func (d *Description) IsSuite() bool { return len(d.Children) > 0 }

// AddChild appends child.
func (d *Description) AddChild(child *Description) {
	d.Children = append(d.Children, child)
}

// Walk visits d and its descendants depth first.
func (d *Description) Walk(fn func(depth int, d *Description)) {
	d.walk(0, fn)
}

func (d *Description) walk(depth int, fn func(int, *Description)) {
	fn(depth, d)
	for _, c := range d.Children {
		c.walk(depth+1, fn)
	}
}

// Find returns the node with identity id.
func (d *Description) Find(id Identity) *Description {
	var found *Description
	d.Walk(func(_ int, n *Description) {
		if found == nil && n.Identity != nil && n.Identity == id {
			found = n
		}
	})
	return found
}

// Render prints the tree, one node per line, indented by depth, with the
// identity in brackets.
func Render(w io.Writer, d *Description) error {
	var err error
	d.Walk(func(depth int, n *Description) {
		if err != nil {
			return
		}
		line := strings.Repeat("  ", depth) + n.DisplayName
		if n.ClassName != "" {
			line += " (" + n.ClassName + ")"
		}
		if n.Identity != nil {
			line += " [" + n.Identity.String() + "]"
		}
		_, err = fmt.Fprintln(w, line)
	})
	return err
}
