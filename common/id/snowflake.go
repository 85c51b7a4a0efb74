package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init initializes the Snowflake node with the given node ID.
// Later calls are no-ops and return the first result.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
		if initErr != nil {
			initErr = fmt.Errorf("creating snowflake node %d: %w", nodeID, initErr)
		}
	})
	return initErr
}

// New generates a time-ordered int64 id. Falls back to node 0 when Init was never called,
// which keeps tests and one-shot commands from having to initialize the generator.
func New() int64 {
	_ = Init(0)
	return node.Generate().Int64()
}
