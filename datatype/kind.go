// Package datatype defines the message-kind taxonomy carried across pipeline
// links, together with the concrete message types a pipeline exchanges.
//
// Kinds form a tree rooted at KindBuffer. Ports declare which kinds they emit
// or accept as a list of Hierarchy entries; a Hierarchy may match a single
// kind exactly or a kind together with all of its descendants.
package datatype

// Kind identifies the dynamic type of a message.
type Kind int

const (
	// KindBuffer is the root of the taxonomy; every message kind descends
	// from it.
	KindBuffer Kind = iota
	KindImgFrame
	KindEncodedFrame
	KindNNData
	KindImgDetections
	KindSpatialImgDetections
	KindIMUData
	KindMessageGroup
)

// parent records the taxonomy tree. KindBuffer is absent: it is the root.
var parent = map[Kind]Kind{
	KindImgFrame:             KindBuffer,
	KindEncodedFrame:         KindBuffer,
	KindNNData:               KindBuffer,
	KindImgDetections:        KindBuffer,
	KindSpatialImgDetections: KindImgDetections,
	KindIMUData:              KindBuffer,
	KindMessageGroup:         KindBuffer,
}

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindImgFrame:
		return "ImgFrame"
	case KindEncodedFrame:
		return "EncodedFrame"
	case KindNNData:
		return "NNData"
	case KindImgDetections:
		return "ImgDetections"
	case KindSpatialImgDetections:
		return "SpatialImgDetections"
	case KindIMUData:
		return "IMUData"
	case KindMessageGroup:
		return "MessageGroup"
	default:
		return "Unknown"
	}
}

// IsDescendantOf reports whether k is a strict descendant of ancestor in the
// taxonomy tree.
func (k Kind) IsDescendantOf(ancestor Kind) bool {
	for {
		p, ok := parent[k]
		if !ok {
			return false
		}
		if p == ancestor {
			return true
		}
		k = p
	}
}

// Hierarchy pairs a base kind with a flag selecting whether descendants of
// that kind match as well. It is pure compatibility metadata; no check beyond
// tag comparison is performed on message objects.
type Hierarchy struct {
	Kind        Kind
	Descendants bool
}

// Matches reports whether a message of kind k satisfies this entry.
func (h Hierarchy) Matches(k Kind) bool {
	return h.Kind == k || (h.Descendants && k.IsDescendantOf(h.Kind))
}

// Compatible reports whether an output declaring out may feed an input
// declaring in: some pair of entries must share a tag, or one side must cover
// the other's tag through descendant matching.
func Compatible(out, in []Hierarchy) bool {
	for _, o := range out {
		for _, i := range in {
			if o.Kind == i.Kind {
				return true
			}
			if o.Matches(i.Kind) || i.Matches(o.Kind) {
				return true
			}
		}
	}
	return false
}
