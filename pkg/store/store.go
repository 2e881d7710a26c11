package store

// Store is a durable key-value target for sequence snapshots. The sequence
// package owns the schema; the store only moves opaque bytes.
type Store interface {
	// Get returns the value for a key; found is false when the key is absent
	Get(key string) (value []byte, found bool, err error)
	// Set writes the value for a key, replacing any previous value
	Set(key string, value []byte) error
	// Clear removes a key; clearing an absent key is not an error
	Clear(key string) error
}
