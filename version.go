package flowdag

import "fmt"

// RuntimeVersion identifies the execution-runtime revision a node depends
// on. Version negotiation itself is an external collaborator's job; the core
// only carries the requirement.
type RuntimeVersion struct {
	Major int
	Minor int
}

func (v RuntimeVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v orders before o.
func (v RuntimeVersion) Less(o RuntimeVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// RuntimeVersioner is implemented by nodes that require a minimum runtime
// version. A nil result means no requirement.
type RuntimeVersioner interface {
	RequiredRuntimeVersion() *RuntimeVersion
}
