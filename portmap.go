package flowdag

import (
	"sort"
	"sync"
)

// OutputMap is a dynamically growing set of homogeneous outputs, keyed by
// (group, key). Indexing it with a new key materializes a fresh output
// cloned from the template config, letting a node expose an open-ended,
// demand-driven set of same-role ports without pre-declaring them.
type OutputMap struct {
	node     Node
	group    string
	template OutputConfig

	mu    sync.Mutex
	ports map[PortKey]*Output
}

// NewOutputMap declares an output map on owner under the given group and
// registers it in the owner's port-map index.
func NewOutputMap(owner Node, group string, template OutputConfig) *OutputMap {
	m := &OutputMap{
		node:     owner,
		group:    group,
		template: template,
		ports:    make(map[PortKey]*Output),
	}
	owner.Base().registerOutputMap(m)
	return m
}

// Group returns the map's group namespace.
func (m *OutputMap) Group() string { return m.group }

// Get returns the output under key within the map's own group, creating and
// registering it on first use.
func (m *OutputMap) Get(key string) *Output {
	return m.GetWithGroup(m.group, key)
}

// GetWithGroup returns the output under an explicit (group, key) pair,
// creating and registering it on first use.
func (m *OutputMap) GetWithGroup(group, key string) *Output {
	pk := PortKey{Group: group, Name: key}
	m.mu.Lock()
	defer m.mu.Unlock()
	if out, ok := m.ports[pk]; ok {
		return out
	}
	cfg := m.template
	cfg.Group = group
	cfg.Name = key
	out := NewOutput(m.node, cfg)
	m.ports[pk] = out
	return out
}

// Has reports whether key has been materialized in the map's own group.
func (m *OutputMap) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ports[PortKey{Group: m.group, Name: key}]
	return ok
}

// Len returns the number of materialized outputs.
func (m *OutputMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ports)
}

// Ports returns the materialized outputs, ordered by key.
func (m *OutputMap) Ports() []*Output {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Output, 0, len(m.ports))
	for _, p := range m.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.String() < out[j].key.String() })
	return out
}

// InputMap is the input-side counterpart of OutputMap.
type InputMap struct {
	node     Node
	group    string
	template InputConfig

	mu    sync.Mutex
	ports map[PortKey]*Input
}

// NewInputMap declares an input map on owner under the given group and
// registers it in the owner's port-map index.
func NewInputMap(owner Node, group string, template InputConfig) *InputMap {
	m := &InputMap{
		node:     owner,
		group:    group,
		template: template,
		ports:    make(map[PortKey]*Input),
	}
	owner.Base().registerInputMap(m)
	return m
}

// Group returns the map's group namespace.
func (m *InputMap) Group() string { return m.group }

// Get returns the input under key within the map's own group, creating and
// registering it on first use.
func (m *InputMap) Get(key string) *Input {
	return m.GetWithGroup(m.group, key)
}

// GetWithGroup returns the input under an explicit (group, key) pair,
// creating and registering it on first use.
func (m *InputMap) GetWithGroup(group, key string) *Input {
	pk := PortKey{Group: group, Name: key}
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.ports[pk]; ok {
		return in
	}
	cfg := m.template
	cfg.Group = group
	cfg.Name = key
	in := NewInput(m.node, cfg)
	m.ports[pk] = in
	return in
}

// Has reports whether key has been materialized in the map's own group.
func (m *InputMap) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ports[PortKey{Group: m.group, Name: key}]
	return ok
}

// Len returns the number of materialized inputs.
func (m *InputMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ports)
}

// Ports returns the materialized inputs, ordered by key.
func (m *InputMap) Ports() []*Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Input, 0, len(m.ports))
	for _, p := range m.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.String() < out[j].key.String() })
	return out
}
