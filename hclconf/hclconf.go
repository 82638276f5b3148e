// Package hclconf loads pipeline graph descriptions from HCL files.
//
// A graph file declares node blocks, labeled with the registered node type
// and an alias, and link blocks wiring their ports:
//
//	node "replay" "cam" {
//	  path = "session.rec"
//	  loop = true
//	}
//
//	node "record" "rec" {
//	  path = "copy.rec"
//	}
//
//	link {
//	  from = "cam.out"
//	  to   = "rec.in"
//	}
//
// Node body attributes become the node's configuration parameters. Port
// references take the form "alias.name", or "alias.group/name" for ports
// living behind a port map. node blocks may nest to describe subgraphs.
package hclconf

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/flowdag/flowdag"
)

type nodeBlock struct {
	Type   string   `hcl:"type,label"`
	Name   string   `hcl:"name,label"`
	Remain hcl.Body `hcl:",remain"`
}

type nodeBody struct {
	Nodes  []*nodeBlock `hcl:"node,block"`
	Remain hcl.Body     `hcl:",remain"`
}

type linkBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

type fileRoot struct {
	Nodes []*nodeBlock `hcl:"node,block"`
	Links []*linkBlock `hcl:"link,block"`
}

// LoadFile parses one HCL file into a graph descriptor.
func LoadFile(path string) (*flowdag.GraphDescriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}
	return decodeRoot(file.Body)
}

// Parse decodes HCL source held in memory; filename only labels diagnostics.
func Parse(src []byte, filename string) (*flowdag.GraphDescriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}
	return decodeRoot(file.Body)
}

func decodeRoot(body hcl.Body) (*flowdag.GraphDescriptor, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decode graph: %w", diags)
	}

	g := &flowdag.GraphDescriptor{}
	for _, nb := range root.Nodes {
		d, err := decodeNode(nb)
		if err != nil {
			return nil, err
		}
		g.Nodes = append(g.Nodes, d)
	}
	for _, lb := range root.Links {
		from, err := parsePortRef(lb.From)
		if err != nil {
			return nil, fmt.Errorf("link from: %w", err)
		}
		to, err := parsePortRef(lb.To)
		if err != nil {
			return nil, fmt.Errorf("link to: %w", err)
		}
		g.Links = append(g.Links, flowdag.LinkSpec{From: from, To: to})
	}
	return g, nil
}

func decodeNode(nb *nodeBlock) (*flowdag.Descriptor, error) {
	d := &flowdag.Descriptor{
		Type:  nb.Type,
		Alias: nb.Name,
	}

	var body nodeBody
	if diags := gohcl.DecodeBody(nb.Remain, nil, &body); diags.HasErrors() {
		return nil, fmt.Errorf("node %q: %w", nb.Name, diags)
	}
	for _, child := range body.Nodes {
		cd, err := decodeNode(child)
		if err != nil {
			return nil, err
		}
		d.Nodes = append(d.Nodes, cd)
	}

	attrs, err := bodyAttributes(body.Remain)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", nb.Name, err)
	}
	for name, attr := range attrs {
		val, vdiags := attr.Expr.Value(nil)
		if vdiags.HasErrors() {
			return nil, fmt.Errorf("node %q, param %q: %w", nb.Name, name, vdiags)
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("node %q, param %q: %w", nb.Name, name, err)
		}
		if d.Params == nil {
			d.Params = make(map[string]any)
		}
		d.Params[name] = goVal
	}
	return d, nil
}

// bodyAttributes returns body's attributes. JustAttributes cannot serve
// here: it rejects sibling blocks even after a schema decode consumed them,
// which would break nested node blocks.
func bodyAttributes(body hcl.Body) (hcl.Attributes, error) {
	syn, ok := body.(*hclsyntax.Body)
	if !ok {
		attrs, diags := body.JustAttributes()
		if diags.HasErrors() {
			return nil, diags
		}
		return attrs, nil
	}
	attrs := make(hcl.Attributes, len(syn.Attributes))
	for name, attr := range syn.Attributes {
		attrs[name] = attr.AsHCLAttribute()
	}
	return attrs, nil
}

// parsePortRef splits "alias.name" or "alias.group/name".
func parsePortRef(s string) (flowdag.PortRef, error) {
	alias, port, ok := strings.Cut(s, ".")
	if !ok || alias == "" || port == "" {
		return flowdag.PortRef{}, fmt.Errorf("invalid port reference %q, want \"node.port\"", s)
	}
	ref := flowdag.PortRef{Node: alias, Name: port}
	if group, name, grouped := strings.Cut(port, "/"); grouped {
		ref.Group = group
		ref.Name = name
	}
	return ref, nil
}

// ctyToGo converts a decoded HCL value into the plain Go shape Configure
// implementations expect. Whole numbers come back as int, everything else
// keeps its natural mapping.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int64()
			return int(i), nil
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
