package docstore

import (
	"fmt"
	"strings"
)

// Collection names used by the sync core.
const (
	CollectionTrips       = "trips"
	CollectionPlans       = "plans"
	CollectionExpenses    = "expenses"
	CollectionCollections = "collections"
	CollectionWhitelist   = "whitelist"
)

// Path is a slash-separated document path with an even number of segments,
// e.g. "trips/t1" or "trips/t1/plans/p1".
type Path string

// Doc joins a collection path and a document id.
func Doc(collection, id string) Path {
	return Path(collection + "/" + id)
}

// Trip returns the path of a trip document.
func Trip(id string) Path { return Doc(CollectionTrips, id) }

// ChildCollection returns the collection path of a trip's child resources,
// e.g. "trips/t1/expenses".
func ChildCollection(tripID, name string) string {
	return CollectionTrips + "/" + tripID + "/" + name
}

// Child returns the path of one child resource of a trip.
func Child(tripID, name, id string) Path {
	return Doc(ChildCollection(tripID, name), id)
}

// ID returns the last path segment.
func (p Path) ID() string {
	s := string(p)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Collection returns the collection path containing the document.
func (p Path) Collection() string {
	s := string(p)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return ""
}

// Validate reports whether p addresses a document: non-empty segments, an
// even segment count.
func (p Path) Validate() error {
	segs := strings.Split(string(p), "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return fmt.Errorf("docstore: %q is not a document path", string(p))
	}
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("docstore: %q has an empty segment", string(p))
		}
	}
	return nil
}

// InCollection reports whether p is a direct child of collection, not a
// document in a nested sub-collection.
func (p Path) InCollection(collection string) bool {
	rest, ok := strings.CutPrefix(string(p), collection+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

// ValidateCollection reports whether c addresses a collection (odd number of
// non-empty segments).
func ValidateCollection(c string) error {
	segs := strings.Split(c, "/")
	if len(segs)%2 != 1 {
		return fmt.Errorf("docstore: %q is not a collection path", c)
	}
	for _, s := range segs {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("docstore: %q has an empty segment", c)
		}
	}
	return nil
}
