package recstore

// cursor holds the traversal position over the primary store's key order.
// It marks the last visited key, not the next one to return.
type cursor struct {
	state cursorState
	key   string // last visited, valid in cursorAt only
}

type cursorState byte

const (
	cursorUnpositioned, cursorAt, cursorExhausted cursorState = 0, 1, 2
)

func (c *cursor) reset() {
	c.state = cursorUnpositioned
	c.key = ""
}

func (c *cursor) positionAt(key string) {
	c.state = cursorAt
	c.key = key
}

func (c *cursor) exhaust() {
	c.state = cursorExhausted
	c.key = ""
}
