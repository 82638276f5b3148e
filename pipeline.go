package flowdag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/flowdag/flowdag/assets"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// rootNode anchors the top-level nodes of a pipeline. It owns the
// connection set for links between top-level nodes.
type rootNode struct {
	BaseNode
}

func (r *rootNode) TypeName() string { return "root" }

// Pipeline is a graph of nodes exchanging messages over typed links. Nodes
// are created standalone, placed with Add (receiving their id), wired with
// Link, and driven through Start/Stop/Wait or Run.
type Pipeline struct {
	instance uuid.UUID
	log      *slog.Logger
	metrics  *Metrics
	assets   *assets.Manager

	root   rootNode
	nextID atomic.Int64

	mu      sync.Mutex
	index   map[NodeID]Node
	started bool
	built   bool
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		instance: uuid.New(),
		log:      NullLogger(),
		assets:   assets.NewManager(),
		index:    make(map[NodeID]Node),
	}
	for _, opt := range opts {
		opt(p)
	}
	InitBase(&p.root)
	p.root.pipeline = p
	p.root.log = p.log
	return p
}

// InstanceID returns the unique identity of this pipeline instance.
func (p *Pipeline) InstanceID() uuid.UUID { return p.instance }

// Logger returns the pipeline's logger.
func (p *Pipeline) Logger() *slog.Logger { return p.log }

// Assets returns the pipeline's asset manager, serving LoadResource calls
// from nodes.
func (p *Pipeline) Assets() *assets.Manager { return p.assets }

// Add places node onto the pipeline as a top-level node, assigning ids to it
// and its whole subtree. A node that has ever been placed cannot be placed
// again.
func (p *Pipeline) Add(node Node) error {
	return p.root.Add(node)
}

// Remove erases node from the graph. All connections touching the node's
// subtree are removed first, then the node itself is released.
func (p *Pipeline) Remove(node Node) error {
	parent := node.Base().Parent()
	if parent == nil {
		return fmt.Errorf("%w: %s is not placed", ErrNodeNotFound, nodeLabel(node))
	}
	return parent.Base().Remove(node)
}

// place assigns pipeline membership and an id to n and its subtree. Called
// with no node locks held.
func (p *Pipeline) place(n Node) {
	b := n.Base()
	b.mu.Lock()
	if b.pipeline == nil {
		b.pipeline = p
		b.id = NodeID(p.nextID.Add(1) - 1)
		if b.state < StatePlaced {
			b.state = StatePlaced
		}
		b.log = p.log.With("node", b.metricsLabel(), "id", int64(b.id))
	}
	id := b.id
	children := make([]Node, len(b.children))
	copy(children, b.children)
	b.mu.Unlock()

	p.mu.Lock()
	p.index[id] = n
	p.mu.Unlock()

	p.metrics.instrumentNode(n)
	p.log.Debug("node placed", "node", nodeLabel(n), "id", int64(id))

	for _, c := range children {
		p.place(c)
	}
}

// forget drops n and its subtree from the id index after removal. The ids
// stay burned: a removed node keeps its id and cannot be re-added.
func (p *Pipeline) forget(n Node) {
	ids := make(map[NodeID]struct{})
	collectIDs(n, ids)
	p.mu.Lock()
	for id := range ids {
		delete(p.index, id)
	}
	p.mu.Unlock()
}

// Node resolves an id to a live node. Connections hold ids, not pointers;
// resolve endpoints through here.
func (p *Pipeline) Node(id NodeID) (Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.index[id]
	return n, ok
}

// Nodes returns the top-level nodes.
func (p *Pipeline) Nodes() []Node {
	return p.root.Nodes()
}

// AllNodes returns every node in the graph in depth-first order.
func (p *Pipeline) AllNodes() []Node {
	return p.root.AllNodes()
}

// Link establishes a validated connection between out and in.
func (p *Pipeline) Link(out *Output, in *Input) error {
	return linkPorts(out, in)
}

// Unlink tears down a previously established connection.
func (p *Pipeline) Unlink(out *Output, in *Input) error {
	return unlinkPorts(out, in)
}

// Connections returns every connection in the graph, aggregated across all
// owning nodes.
func (p *Pipeline) Connections() []Connection {
	conns := p.root.Connections()
	for _, n := range p.AllNodes() {
		conns = append(conns, n.Base().Connections()...)
	}
	return conns
}

// ConnectionMap returns a snapshot mapping each input-side node id to the
// connections terminating at it, across the whole graph.
func (p *Pipeline) ConnectionMap() map[NodeID][]Connection {
	result := make(map[NodeID][]Connection)
	for _, c := range p.Connections() {
		result[c.InputID] = append(result[c.InputID], c)
	}
	return result
}

// RequiredRuntimeVersion returns the highest runtime version any node in the
// graph requires, or nil when no node states a requirement.
func (p *Pipeline) RequiredRuntimeVersion() *RuntimeVersion {
	var req *RuntimeVersion
	for _, n := range p.AllNodes() {
		v, ok := n.(RuntimeVersioner)
		if !ok {
			continue
		}
		nv := v.RequiredRuntimeVersion()
		if nv == nil {
			continue
		}
		if req == nil || req.Less(*nv) {
			req = nv
		}
	}
	return req
}

// Build runs the three build stages over every node, in graph order per
// stage, letting nodes self-configure against the assembled graph. Build is
// invoked implicitly by Start.
func (p *Pipeline) Build() error {
	p.mu.Lock()
	if p.built {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	nodes := p.AllNodes()
	for stage := 0; stage < 3; stage++ {
		for _, n := range nodes {
			var err error
			switch stage {
			case 0:
				if h, ok := n.(BuildStager1); ok {
					err = h.BuildStage1()
				}
			case 1:
				if h, ok := n.(BuildStager2); ok {
					err = h.BuildStage2()
				}
			case 2:
				if h, ok := n.(BuildStager3); ok {
					err = h.BuildStage3()
				}
			}
			if err != nil {
				return fmt.Errorf("build stage %d of %s: %w", stage+1, nodeLabel(n), err)
			}
			_ = n.Base().advance(StateBuildStage1 + LifecycleState(stage))
		}
	}

	p.mu.Lock()
	p.built = true
	p.mu.Unlock()
	return nil
}

// Start builds the graph if needed and starts every node. Nodes without a
// Start hook only advance their lifecycle.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("%w: pipeline already started", ErrLifecycle)
	}
	p.started = true
	p.mu.Unlock()

	if err := p.Build(); err != nil {
		return err
	}

	nodes := p.AllNodes()
	for i, n := range nodes {
		var err error
		if s, ok := n.(Starter); ok {
			err = s.Start()
		} else {
			err = n.Base().advance(StateStarted)
		}
		if err != nil {
			// Roll back: stop whatever already started, in reverse.
			for j := i - 1; j >= 0; j-- {
				if st, ok := nodes[j].(Stopper); ok {
					_ = st.Stop()
				}
			}
			return fmt.Errorf("start %s: %w", nodeLabel(n), err)
		}
		p.log.Info("node started", "node", nodeLabel(n))
	}
	return nil
}

// Stop requests every node to stop, in reverse graph order, and aggregates
// their errors.
func (p *Pipeline) Stop() error {
	nodes := p.AllNodes()
	var err error
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if s, ok := n.(Stopper); ok {
			err = multierr.Append(err, s.Stop())
		}
	}
	return err
}

// Wait blocks until every node's execution has drained.
func (p *Pipeline) Wait() error {
	var eg errgroup.Group
	for _, n := range p.AllNodes() {
		if w, ok := n.(Waiter); ok {
			eg.Go(w.Wait)
		}
	}
	return eg.Wait()
}

// Run starts the pipeline and blocks until either every node has finished
// or ctx is done, in which case the pipeline is stopped and drained.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.log.Info("pipeline stopping", "reason", ctx.Err())
		return multierr.Append(p.Stop(), <-done)
	}
}
