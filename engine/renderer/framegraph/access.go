package framegraph

import "fmt"

type ResourceAccess uint8

const (
	AccessCreate ResourceAccess = iota
	AccessRead
	AccessWrite
)

func (a ResourceAccess) String() string {
	switch a {
	case AccessCreate:
		return "create"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	}
	return "unknown"
}

// Access is what a pass did to a resource. For writes Version is the version
// that was overwritten; the pass produces Version+1.
type Access struct {
	Resource ResourceIndex
	Kind     ResourceAccess
	Version  uint32
}

func (a Access) String() string {
	return fmt.Sprintf("%s #%d@v%d", a.Kind, a.Resource, a.Version)
}

// edge orders pass from before pass to.
type edge struct {
	from, to int
	access   Access
}
