package flowdag

import "fmt"

// Descriptor declares one node for deferred construction: its type tag,
// alias, parameters and child descriptors, with no live resources behind it.
// A Descriptor can be handed around, persisted, or shipped elsewhere; only
// Activate turns it into a live node. Execution methods do not exist on a
// Descriptor, so an unactivated description cannot be run by construction.
type Descriptor struct {
	Type   string
	Alias  string
	Params map[string]any
	Nodes  []*Descriptor
}

// PortRef names a port on a node by alias. Group is empty for ungrouped
// ports; for ports behind an Output/Input map it selects the map, and Name
// the key to materialize.
type PortRef struct {
	Node  string
	Group string
	Name  string
}

func (r PortRef) String() string {
	return r.Node + "." + PortKey{Group: r.Group, Name: r.Name}.String()
}

// LinkSpec declares one connection between two described nodes.
type LinkSpec struct {
	From PortRef
	To   PortRef
}

// GraphDescriptor declares a whole pipeline graph: its nodes and the links
// among them.
type GraphDescriptor struct {
	Nodes []*Descriptor
	Links []LinkSpec
}

// Activate constructs d through reg, configures it, and places it under
// parent. Child descriptors are activated recursively.
func (d *Descriptor) Activate(parent *BaseNode, reg *Registry) (Node, error) {
	n, err := reg.New(d.Type)
	if err != nil {
		return nil, err
	}
	if d.Alias != "" {
		n.Base().SetAlias(d.Alias)
	}
	if len(d.Params) > 0 {
		c, ok := n.(Configurable)
		if !ok {
			return nil, fmt.Errorf("node type %q accepts no parameters", d.Type)
		}
		if err := c.Configure(d.Params); err != nil {
			return nil, fmt.Errorf("configure %q: %w", d.Alias, err)
		}
	}
	for _, child := range d.Nodes {
		if _, err := child.Activate(n.Base(), reg); err != nil {
			return nil, err
		}
	}
	if err := parent.Add(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Activate builds the described graph onto p: every node is constructed
// through reg and placed, then every link is established. Activation fails
// on the first error, leaving whatever was already built in place.
func (g *GraphDescriptor) Activate(p *Pipeline, reg *Registry) error {
	byAlias := make(map[string]Node)
	for _, d := range g.Nodes {
		n, err := d.Activate(p.root.Base(), reg)
		if err != nil {
			return err
		}
		alias := d.Alias
		if alias == "" {
			alias = d.Type
		}
		if _, dup := byAlias[alias]; dup {
			return fmt.Errorf("duplicate node alias %q", alias)
		}
		byAlias[alias] = n
	}

	for _, l := range g.Links {
		out, err := resolveOutput(byAlias, l.From)
		if err != nil {
			return err
		}
		in, err := resolveInput(byAlias, l.To)
		if err != nil {
			return err
		}
		if err := p.Link(out, in); err != nil {
			return err
		}
	}
	return nil
}

func resolveOutput(byAlias map[string]Node, ref PortRef) (*Output, error) {
	n, ok := byAlias[ref.Node]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, ref.Node)
	}
	b := n.Base()
	if out, ok := b.OutputIn(ref.Group, ref.Name); ok {
		return out, nil
	}
	// A grouped ref may address a port map key that has not been
	// materialized yet.
	if ref.Group != "" {
		if m, ok := b.OutputMapRef(ref.Group); ok {
			return m.Get(ref.Name), nil
		}
	}
	return nil, fmt.Errorf("node %q has no output %q", ref.Node, PortKey{Group: ref.Group, Name: ref.Name})
}

func resolveInput(byAlias map[string]Node, ref PortRef) (*Input, error) {
	n, ok := byAlias[ref.Node]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, ref.Node)
	}
	b := n.Base()
	if in, ok := b.InputIn(ref.Group, ref.Name); ok {
		return in, nil
	}
	if ref.Group != "" {
		if m, ok := b.InputMapRef(ref.Group); ok {
			return m.Get(ref.Name), nil
		}
	}
	return nil, fmt.Errorf("node %q has no input %q", ref.Node, PortKey{Group: ref.Group, Name: ref.Name})
}
