package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// defaultNode is used when New is called before Init, e.g. from tests.
const defaultNode = 0

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Only the first call (or the first New) takes effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances as long as
// every process runs with its own node ID.
func New() int64 {
	once.Do(func() {
		node, _ = snowflake.NewNode(defaultNode)
	})
	return node.Generate().Int64()
}
