package flowdag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

// NodeID is the process-unique identifier of a node within one pipeline
// graph. It is assigned exactly once, when the node is placed.
type NodeID int64

// NodeIDUnset marks a node that has not been placed on a pipeline yet.
const NodeIDUnset NodeID = -1

// Node is implemented by every graph vertex. Concrete nodes embed BaseNode
// (or ThreadedNode) and add their ports as fields; the embedded base
// satisfies Base.
type Node interface {
	// Base returns the embedded graph bookkeeping.
	Base() *BaseNode
	// TypeName returns the registry tag of the concrete node type.
	TypeName() string
}

// Runner is implemented by nodes with their own execution loop. Run must
// return when ctx is done; returning ErrEndOfStream marks clean source
// exhaustion.
type Runner interface {
	Run(ctx context.Context) error
}

// Starter is implemented by nodes that open external resources before
// execution.
type Starter interface {
	Start() error
}

// Stopper is implemented by nodes that release external resources.
type Stopper interface {
	Stop() error
}

// Waiter is implemented by nodes whose execution must be drained.
type Waiter interface {
	Wait() error
}

// BuildStager1, BuildStager2 and BuildStager3 are optional hooks invoked in
// order once the surrounding graph is assembled, letting a node finish
// self-configuration against sibling and ancestor state not available at
// construction time.
type BuildStager1 interface {
	BuildStage1() error
}

type BuildStager2 interface {
	BuildStage2() error
}

type BuildStager3 interface {
	BuildStage3() error
}

// Configurable is implemented by nodes accepting declarative parameters,
// used by descriptors and the HCL loader.
type Configurable interface {
	Configure(params map[string]any) error
}

// LifecycleState tracks the one-directional build and run protocol of a
// node. A node instance is single-use across one run; re-entering an earlier
// state is not supported.
type LifecycleState int

const (
	StateDeclared LifecycleState = iota
	StatePlaced
	StateBuildStage1
	StateBuildStage2
	StateBuildStage3
	StateStarted
	StateRunning
	StateStopped
	StateWaited
)

func (s LifecycleState) String() string {
	switch s {
	case StateDeclared:
		return "Declared"
	case StatePlaced:
		return "Placed"
	case StateBuildStage1:
		return "BuildStage1"
	case StateBuildStage2:
		return "BuildStage2"
	case StateBuildStage3:
		return "BuildStage3"
	case StateStarted:
		return "Started"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateWaited:
		return "Waited"
	default:
		return "Unknown"
	}
}

// BaseNode carries the graph bookkeeping every node embeds: identity, the
// child list, the connection set among children, and the port indexes. Port
// objects themselves live as fields of the concrete node; the base only
// indexes them.
type BaseNode struct {
	mu sync.Mutex

	// self points back at the embedding node so base operations can hand
	// out the full Node. Set by InitBase.
	self Node

	id    NodeID
	alias string
	state LifecycleState

	pipeline *Pipeline
	parent   Node

	children    []Node
	connections map[Connection]*connection

	outputs    map[PortKey]*Output
	inputs     map[PortKey]*Input
	outputMaps map[string]*OutputMap
	inputMaps  map[string]*InputMap

	log *slog.Logger
}

// InitBase prepares the embedded BaseNode of n. Concrete node constructors
// must call it before declaring any ports.
func InitBase(n Node) {
	b := n.Base()
	b.self = n
	b.id = NodeIDUnset
	b.connections = make(map[Connection]*connection)
	b.outputs = make(map[PortKey]*Output)
	b.inputs = make(map[PortKey]*Input)
	b.outputMaps = make(map[string]*OutputMap)
	b.inputMaps = make(map[string]*InputMap)
	b.log = NullLogger()
}

// Base returns b, letting the embedded struct satisfy Node.
func (b *BaseNode) Base() *BaseNode { return b }

// ID returns the node's id, NodeIDUnset before placement.
func (b *BaseNode) ID() NodeID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// Alias returns the optional human-readable alias.
func (b *BaseNode) Alias() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alias
}

// SetAlias sets the human-readable alias.
func (b *BaseNode) SetAlias(alias string) {
	b.mu.Lock()
	b.alias = alias
	b.mu.Unlock()
}

// Pipeline returns the pipeline this node is placed on, or nil.
func (b *BaseNode) Pipeline() *Pipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pipeline
}

// Parent returns the node's parent, or nil for top-level nodes.
func (b *BaseNode) Parent() Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// State returns the current lifecycle state.
func (b *BaseNode) State() LifecycleState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Log returns the node's logger. Before placement this is a null logger;
// placement attaches the pipeline's logger.
func (b *BaseNode) Log() *slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log
}

// advance moves the lifecycle forward. Transitions are monotonic: moving to
// an earlier or identical state fails.
func (b *BaseNode) advance(to LifecycleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to <= b.state {
		return fmt.Errorf("%w: %s -> %s", ErrLifecycle, b.state, to)
	}
	b.state = to
	return nil
}

func (b *BaseNode) metricsLabel() string {
	if b.alias != "" {
		return b.alias
	}
	if b.self != nil {
		return b.self.TypeName()
	}
	return "node"
}

func nodeLabel(n Node) string {
	if n == nil {
		return "?"
	}
	b := n.Base()
	if alias := b.Alias(); alias != "" {
		return alias
	}
	if id := b.ID(); id != NodeIDUnset {
		return fmt.Sprintf("%s[%d]", n.TypeName(), id)
	}
	return n.TypeName()
}

// registerOutput indexes a freshly declared output. Called by NewOutput.
func (b *BaseNode) registerOutput(o *Output) {
	b.mu.Lock()
	if _, exists := b.outputs[o.key]; exists {
		b.mu.Unlock()
		panic(fmt.Sprintf("flowdag: duplicate output port %q on %s", o.key, b.metricsLabel()))
	}
	b.outputs[o.key] = o
	p := b.pipeline
	label := b.metricsLabel()
	b.mu.Unlock()
	if p != nil {
		p.metrics.instrumentOutput(label, o)
	}
}

// registerInput indexes a freshly declared input. Called by NewInput.
func (b *BaseNode) registerInput(in *Input) {
	b.mu.Lock()
	if _, exists := b.inputs[in.key]; exists {
		b.mu.Unlock()
		panic(fmt.Sprintf("flowdag: duplicate input port %q on %s", in.key, b.metricsLabel()))
	}
	b.inputs[in.key] = in
	p := b.pipeline
	label := b.metricsLabel()
	b.mu.Unlock()
	if p != nil {
		p.metrics.instrumentInput(label, in)
	}
}

func (b *BaseNode) registerOutputMap(m *OutputMap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.outputMaps[m.group]; exists {
		panic(fmt.Sprintf("flowdag: duplicate output map %q on %s", m.group, b.metricsLabel()))
	}
	b.outputMaps[m.group] = m
}

func (b *BaseNode) registerInputMap(m *InputMap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.inputMaps[m.group]; exists {
		panic(fmt.Sprintf("flowdag: duplicate input map %q on %s", m.group, b.metricsLabel()))
	}
	b.inputMaps[m.group] = m
}

// Outputs returns the node's outputs, ordered by key.
func (b *BaseNode) Outputs() []*Output {
	b.mu.Lock()
	out := maps.Values(b.outputs)
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].key.String() < out[j].key.String() })
	return out
}

// Inputs returns the node's inputs, ordered by key.
func (b *BaseNode) Inputs() []*Input {
	b.mu.Lock()
	in := maps.Values(b.inputs)
	b.mu.Unlock()
	sort.Slice(in, func(i, j int) bool { return in[i].key.String() < in[j].key.String() })
	return in
}

// Output looks up an ungrouped output by name.
func (b *BaseNode) Output(name string) (*Output, bool) {
	return b.OutputIn("", name)
}

// OutputIn looks up an output by (group, name).
func (b *BaseNode) OutputIn(group, name string) (*Output, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.outputs[PortKey{Group: group, Name: name}]
	return o, ok
}

// Input looks up an ungrouped input by name.
func (b *BaseNode) Input(name string) (*Input, bool) {
	return b.InputIn("", name)
}

// InputIn looks up an input by (group, name).
func (b *BaseNode) InputIn(group, name string) (*Input, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	in, ok := b.inputs[PortKey{Group: group, Name: name}]
	return in, ok
}

// OutputMaps returns the node's output maps, ordered by group.
func (b *BaseNode) OutputMaps() []*OutputMap {
	b.mu.Lock()
	out := maps.Values(b.outputMaps)
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].group < out[j].group })
	return out
}

// InputMaps returns the node's input maps, ordered by group.
func (b *BaseNode) InputMaps() []*InputMap {
	b.mu.Lock()
	in := maps.Values(b.inputMaps)
	b.mu.Unlock()
	sort.Slice(in, func(i, j int) bool { return in[i].group < in[j].group })
	return in
}

// OutputMapRef looks up an output map by group.
func (b *BaseNode) OutputMapRef(group string) (*OutputMap, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.outputMaps[group]
	return m, ok
}

// InputMapRef looks up an input map by group.
func (b *BaseNode) InputMapRef(group string) (*InputMap, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.inputMaps[group]
	return m, ok
}

// Add inserts child into this node's graph. If this node is already placed,
// the child subtree is placed as well: pipeline reference set, ids assigned.
// A node that has ever been placed cannot be added again.
func (b *BaseNode) Add(child Node) error {
	cb := child.Base()

	cb.mu.Lock()
	if cb.id != NodeIDUnset || cb.pipeline != nil || cb.parent != nil {
		cb.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeAlreadyPlaced, nodeLabel(child))
	}
	cb.parent = b.self
	cb.mu.Unlock()

	b.mu.Lock()
	b.children = append(b.children, child)
	p := b.pipeline
	b.mu.Unlock()

	if p != nil {
		p.place(child)
	}
	return nil
}

// Remove erases child from this node's graph. Every connection touching the
// removed subtree is torn down first, so no output keeps delivering into a
// queue of a node that is gone.
func (b *BaseNode) Remove(child Node) error {
	b.mu.Lock()
	idx := -1
	for i, c := range b.children {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s is not a child of %s", ErrNodeNotFound, nodeLabel(child), b.metricsLabel())
	}
	b.children = append(b.children[:idx], b.children[idx+1:]...)
	p := b.pipeline
	b.mu.Unlock()

	// Collect the ids of the removed subtree, then purge matching
	// connections from every ancestor set that could own one.
	removed := make(map[NodeID]struct{})
	collectIDs(child, removed)

	for anc := b.self; anc != nil; anc = anc.Base().Parent() {
		anc.Base().removeConnectionsTouching(removed)
	}

	cb := child.Base()
	cb.mu.Lock()
	cb.parent = nil
	cb.mu.Unlock()

	if p != nil {
		p.forget(child)
	}
	return nil
}

func collectIDs(n Node, into map[NodeID]struct{}) {
	b := n.Base()
	b.mu.Lock()
	if b.id != NodeIDUnset {
		into[b.id] = struct{}{}
	}
	children := make([]Node, len(b.children))
	copy(children, b.children)
	b.mu.Unlock()
	for _, c := range children {
		collectIDs(c, into)
	}
}

// removeConnectionsTouching drops every connection whose endpoint is in ids,
// unlinking the output's fan-out entry for the input's queue.
func (b *BaseNode) removeConnectionsTouching(ids map[NodeID]struct{}) {
	b.mu.Lock()
	var victims []*connection
	for key, c := range b.connections {
		_, outHit := ids[key.OutputID]
		_, inHit := ids[key.InputID]
		if outHit || inHit {
			victims = append(victims, c)
			delete(b.connections, key)
		}
	}
	b.mu.Unlock()

	for _, c := range victims {
		_ = c.out.Unlink(c.in.queue)
	}
}

// Nodes returns the direct children.
func (b *BaseNode) Nodes() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Node, len(b.children))
	copy(out, b.children)
	return out
}

// AllNodes returns the subtree below this node in depth-first order.
func (b *BaseNode) AllNodes() []Node {
	var all []Node
	for _, c := range b.Nodes() {
		all = append(all, c)
		all = append(all, c.Base().AllNodes()...)
	}
	return all
}

// Connections returns a snapshot of the connections recorded on this node.
func (b *BaseNode) Connections() []Connection {
	b.mu.Lock()
	keys := maps.Keys(b.connections)
	b.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// ConnectionMap returns a snapshot mapping each input-side node id to the
// connections terminating at it. The result aliases no live state.
func (b *BaseNode) ConnectionMap() map[NodeID][]Connection {
	result := make(map[NodeID][]Connection)
	for _, c := range b.Connections() {
		result[c.InputID] = append(result[c.InputID], c)
	}
	return result
}

// Link establishes a validated connection between out and in. See
// Output.CanConnect for the validation rules; linking an already-connected
// pair fails and the graph is left unchanged.
func (b *BaseNode) Link(out *Output, in *Input) error {
	return linkPorts(out, in)
}

// Unlink tears down a previously established connection.
func (b *BaseNode) Unlink(out *Output, in *Input) error {
	return unlinkPorts(out, in)
}

// LoadResource loads the resource identified by uri through the pipeline's
// asset manager.
func (b *BaseNode) LoadResource(uri string) ([]byte, error) {
	p := b.Pipeline()
	if p == nil {
		return nil, fmt.Errorf("load resource %q: node %s is not placed on a pipeline", uri, b.metricsLabel())
	}
	return p.Assets().Load(uri)
}

// lowestCommonAncestor finds the node owning a connection between a and b:
// the nearest node whose subtree contains both.
func lowestCommonAncestor(a, b Node) *BaseNode {
	seen := make(map[*BaseNode]struct{})
	for n := a; n != nil; n = n.Base().Parent() {
		seen[n.Base()] = struct{}{}
	}
	for n := b; n != nil; n = n.Base().Parent() {
		if _, ok := seen[n.Base()]; ok {
			return n.Base()
		}
	}
	return nil
}

func linkPorts(out *Output, in *Input) error {
	if !out.SamePipeline(in) {
		return fmt.Errorf("%w: %s and %s are not on the same pipeline", ErrInvalidLink, out, in)
	}
	if !out.CanConnect(in) {
		return fmt.Errorf("%w: no compatible datatype between %s and %s", ErrInvalidLink, out, in)
	}

	owner := lowestCommonAncestor(out.node, in.node)
	if owner == nil {
		// Both parent chains end at the pipeline root, so this cannot
		// happen for same-pipeline ports; guard anyway.
		return fmt.Errorf("%w: %s and %s share no ancestor", ErrInvalidLink, out, in)
	}

	c := &connection{out: out, in: in}
	key := c.external()

	owner.mu.Lock()
	if _, dup := owner.connections[key]; dup {
		owner.mu.Unlock()
		return fmt.Errorf("%w: %s already connected to %s", ErrInvalidLink, out, in)
	}
	// Reserve the slot before touching the fan-out list so a concurrent
	// identical link cannot slip in between.
	owner.connections[key] = c
	owner.mu.Unlock()

	if err := out.Link(in.queue); err != nil {
		owner.mu.Lock()
		delete(owner.connections, key)
		owner.mu.Unlock()
		return err
	}
	return nil
}

func unlinkPorts(out *Output, in *Input) error {
	owner := lowestCommonAncestor(out.node, in.node)
	if owner == nil {
		return fmt.Errorf("%w: %s not connected to %s", ErrInvalidUnlink, out, in)
	}

	key := (&connection{out: out, in: in}).external()

	owner.mu.Lock()
	c, ok := owner.connections[key]
	if !ok {
		owner.mu.Unlock()
		return fmt.Errorf("%w: %s not connected to %s", ErrInvalidUnlink, out, in)
	}
	delete(owner.connections, key)
	owner.mu.Unlock()

	return c.out.Unlink(c.in.queue)
}
