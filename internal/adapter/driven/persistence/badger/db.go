package badger

import (
	"github.com/dgraph-io/badger/v4"
)

// Open opens (or creates) the database at path. An empty path keeps everything in memory.
func Open(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		options = options.WithInMemory(true)
	}
	return badger.Open(options)
}
