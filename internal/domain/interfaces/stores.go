package interfaces

// KVStore is a string-valued durable key-value store.
//
// SetMany applies all pairs in one write so that related values are
// never persisted partially.
type KVStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	SetMany(pairs map[string]string) error
	Delete(keys ...string) error
	Keys() ([]string, error)
	Close() error
}
