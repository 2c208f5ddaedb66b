package cache

// Storage is a set of named, independent partitions.
// Implementations must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// Partition opens the partition called name, creating it if needed.
	Partition(name string) (Partition, error)
	// Names lists all existing partitions.
	Names() ([]string, error)
	// Drop deletes the named partition and reports whether it existed.
	Drop(name string) (bool, error)
}

// Partition maps request identities (method + URL) to stored responses.
type Partition interface {
	Name() string
	// Match returns the entry stored for method and rawURL or ErrNotFound.
	Match(method, rawURL string) (*Entry, error)
	// Put creates or overwrites the entry under its request identity.
	Put(e *Entry) error
	// List describes every entry without their bodies.
	List() ([]EntryInfo, error)
}
