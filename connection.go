package flowdag

import "fmt"

// Connection is the exported, serializable form of an Output-Input edge:
// numeric node ids plus textual port identifiers. It is comparable and safe
// to hold, hash, or export without dereferencing live graph objects; resolve
// endpoints through Pipeline.Node when needed.
type Connection struct {
	OutputID    NodeID
	OutputGroup string
	OutputName  string
	InputID     NodeID
	InputGroup  string
	InputName   string
}

func (c Connection) String() string {
	return fmt.Sprintf("%d.%s -> %d.%s",
		c.OutputID, PortKey{Group: c.OutputGroup, Name: c.OutputName},
		c.InputID, PortKey{Group: c.InputGroup, Name: c.InputName})
}

// connection is the internal record kept in the owning ancestor's set. The
// live port pointers are valid only while both endpoint nodes remain in the
// graph; they die with this record.
type connection struct {
	out *Output
	in  *Input
}

// external builds the exported form from the live endpoints.
func (c *connection) external() Connection {
	return Connection{
		OutputID:    c.out.node.Base().ID(),
		OutputGroup: c.out.key.Group,
		OutputName:  c.out.key.Name,
		InputID:     c.in.node.Base().ID(),
		InputGroup:  c.in.key.Group,
		InputName:   c.in.key.Name,
	}
}

// connectionsFrom collects the recorded connections originating at out by
// scanning the ancestor chain of its owning node.
func connectionsFrom(out *Output) []Connection {
	var result []Connection
	for b := out.node.Base(); b != nil; {
		b.mu.Lock()
		for key, c := range b.connections {
			if c.out == out {
				result = append(result, key)
			}
		}
		parent := b.parent
		b.mu.Unlock()
		if parent == nil {
			break
		}
		b = parent.Base()
	}
	return result
}
