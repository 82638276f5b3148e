// Package flowdag is a small dataflow-graph engine for composing
// stream-processing stages into a directed pipeline.
//
// A Pipeline owns a graph of Nodes. Each node declares typed ports at
// construction: an Output fans messages out to every queue connected to it,
// an Input owns a single bounded MessageQueue. Link validates datatype
// compatibility between an output and an input, attaches the output to the
// input's queue, and records the connection on the nearest common ancestor
// node for introspection and cascading cleanup. Removing a node tears down
// every connection touching it before the node is released.
//
// Queues are either blocking (a full queue back-pressures the producer) or
// overwriting (a full queue drops its oldest entry, so the producer never
// stalls). Blocking operations take a context and return on cancellation,
// which is how a stopping node's reads unblock.
//
// Nodes with their own execution loop embed ThreadedNode and implement
// Runner; Pipeline.Run drives the whole graph: build stages, start, and a
// drained shutdown. Concrete processing nodes live under nodes/; they are
// consumers of the port contract rather than part of the engine.
//
// Minimal usage:
//
//	p := flowdag.New()
//	cam := replay.New()
//	rec := record.New()
//	_ = p.Add(cam)
//	_ = p.Add(rec)
//	if err := p.Link(cam.Out, rec.In); err != nil {
//		// incompatible or duplicate link
//	}
//	err := p.Run(ctx)
//
// Pipelines can also be described declaratively (see GraphDescriptor and the
// hclconf package) and activated through a node Registry.
package flowdag
