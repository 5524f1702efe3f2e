package headerchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/event"

	"github.com/rony4d/randbeacon/inter"
)

var (
	ErrUnknownHeight = errors.New("no canonical header at height")
	ErrUnknownParent = errors.New("parent is not canonical")
)

// ReorgEvent is sent when canonical blocks above Ancestor are replaced.
type ReorgEvent struct {
	Ancestor idx.Block
	Dropped  []hash.Hash
	Head     inter.Header
}

// Chain is the canonical header chain. Index i holds the block at height i.
type Chain struct {
	mu     sync.RWMutex
	blocks []*Block

	reorgFeed event.Feed
}

// New returns a chain holding only the genesis block.
func New(genesisTime uint64) *Chain {
	return &Chain{blocks: []*Block{genesisBlock(genesisTime)}}
}

// SubscribeReorgs delivers every reorg to ch.
func (c *Chain) SubscribeReorgs(ch chan<- ReorgEvent) event.Subscription {
	return c.reorgFeed.Subscribe(ch)
}

// Head returns the canonical head header.
func (c *Chain) Head() inter.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Header
}

// Child builds, without inserting, a block on top of parent.
func Child(parent *inter.Header, leaves []hash.Hash, time uint64) *Block {
	return NewBlock(&inter.Header{
		Number:     parent.Number + 1,
		ParentHash: parent.Hash(),
		Time:       time,
	}, leaves)
}

// Append builds a block on the head and inserts it.
func (c *Chain) Append(leaves []hash.Hash, time uint64) *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	head := c.blocks[len(c.blocks)-1]
	b := Child(&head.Header, leaves, time)
	c.blocks = append(c.blocks, b)
	return b
}

// Insert replaces the canonical chain above the parent of blocks[0] with
// blocks. The blocks must link to each other and to a canonical parent.
// A reorg event is sent when canonical blocks were dropped.
func (c *Chain) Insert(blocks []*Block) error {
	if len(blocks) == 0 {
		return nil
	}
	c.mu.Lock()
	first := blocks[0].Header
	if first.Number == 0 || int(first.Number) > len(c.blocks) {
		c.mu.Unlock()
		return fmt.Errorf("block %d: %w", first.Number, ErrUnknownParent)
	}
	if c.blocks[first.Number-1].Hash() != first.ParentHash {
		c.mu.Unlock()
		return fmt.Errorf("block %d: %w", first.Number, ErrUnknownParent)
	}
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1].Header, blocks[i].Header
		if cur.Number != prev.Number+1 || cur.ParentHash != prev.Hash() {
			c.mu.Unlock()
			return fmt.Errorf("block %d does not extend %d: %w", cur.Number, prev.Number, ErrUnknownParent)
		}
	}

	var dropped []hash.Hash
	for _, b := range c.blocks[first.Number:] {
		dropped = append(dropped, b.Hash())
	}
	c.blocks = append(c.blocks[:first.Number], blocks...)
	ev := ReorgEvent{Ancestor: first.Number - 1, Dropped: dropped, Head: c.blocks[len(c.blocks)-1].Header}
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.reorgFeed.Send(ev)
	}
	return nil
}

// SetHead rewinds the chain so that height is the head.
func (c *Chain) SetHead(height idx.Block) error {
	c.mu.Lock()
	if int(height) >= len(c.blocks) {
		c.mu.Unlock()
		return fmt.Errorf("height %d: %w", height, ErrUnknownHeight)
	}
	var dropped []hash.Hash
	for _, b := range c.blocks[height+1:] {
		dropped = append(dropped, b.Hash())
	}
	c.blocks = c.blocks[:height+1]
	ev := ReorgEvent{Ancestor: height, Dropped: dropped, Head: c.blocks[height].Header}
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.reorgFeed.Send(ev)
	}
	return nil
}

// Block returns the canonical block at height.
func (c *Chain) Block(height idx.Block) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(height) >= len(c.blocks) {
		return nil, false
	}
	return c.blocks[height], true
}

// HeaderAtHeight returns a copy of the canonical header at height.
func (c *Chain) HeaderAtHeight(ctx context.Context, height idx.Block) (*inter.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := c.Block(height)
	if !ok {
		return nil, fmt.Errorf("height %d: %w", height, ErrUnknownHeight)
	}
	h := b.Header
	return &h, nil
}

// IsCanonical reports whether headerHash is the canonical header at height.
func (c *Chain) IsCanonical(height idx.Block, headerHash hash.Hash) bool {
	b, ok := c.Block(height)
	return ok && b.Hash() == headerHash
}
