package dynbatch

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Block represents a KV cache block
type Block struct {
	BlockID  int
	RefCount int
	Hash     uint64
	TokenIDs []int
}

// NewBlock creates a new block
func NewBlock(blockID int) *Block {
	return &Block{
		BlockID:  blockID,
		RefCount: 0,
		Hash:     0,
		TokenIDs: make([]int, 0),
	}
}

// Update updates the block's hash and token IDs
func (b *Block) Update(hash uint64, tokenIDs []int) {
	b.Hash = hash
	b.TokenIDs = make([]int, len(tokenIDs))
	copy(b.TokenIDs, tokenIDs)
}

// Reset resets the block for reuse
func (b *Block) Reset() {
	b.RefCount = 1
	b.Hash = 0
	b.TokenIDs = make([]int, 0)
}

// BlockManager is the concrete CacheManager: a fixed pool of KV cache blocks
// with content-hash prefix caching. Full blocks are keyed by an xxhash chain
// over their tokens so identical prompt prefixes share blocks via refcounting.
type BlockManager struct {
	blockSize       int
	maxBlocksPerSeq int
	blocks          []*Block
	hashToBlockID   map[uint64]int
	freeBlockIDs    []int
	usedBlockIDs    map[int]bool
}

var _ CacheManager = (*BlockManager)(nil)

// NewBlockManager creates a block manager with numBlocks blocks of blockSize
// tokens each. maxSeqLen bounds the total length (prompt plus output) of a
// single sequence and sizes the conservative admission guard.
func NewBlockManager(numBlocks, blockSize, maxSeqLen int) *BlockManager {
	blocks := make([]*Block, numBlocks)
	for i := 0; i < numBlocks; i++ {
		blocks[i] = NewBlock(i)
	}

	freeBlockIDs := make([]int, numBlocks)
	for i := 0; i < numBlocks; i++ {
		freeBlockIDs[i] = i
	}

	return &BlockManager{
		blockSize:       blockSize,
		maxBlocksPerSeq: (maxSeqLen + blockSize - 1) / blockSize,
		blocks:          blocks,
		hashToBlockID:   make(map[uint64]int),
		freeBlockIDs:    freeBlockIDs,
		usedBlockIDs:    make(map[int]bool),
	}
}

// ComputeHash computes the hash of token IDs chained onto an optional prefix hash
func (bm *BlockManager) ComputeHash(tokenIDs []int, prefixHash uint64) uint64 {
	h := xxhash.New()

	if prefixHash != 0 {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, prefixHash)
		h.Write(buf)
	}

	for _, tokenID := range tokenIDs {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(tokenID))
		h.Write(buf)
	}

	return h.Sum64()
}

// AvailableBlocks returns the number of free blocks
func (bm *BlockManager) AvailableBlocks() int {
	return len(bm.freeBlockIDs)
}

// MaxBlocksPerSequence returns the worst-case block demand of one sequence
func (bm *BlockManager) MaxBlocksPerSequence() int {
	return bm.maxBlocksPerSeq
}

// numBlocksFor returns the block count needed to hold n tokens
func (bm *BlockManager) numBlocksFor(n int) int {
	return (n + bm.blockSize - 1) / bm.blockSize
}

// blockTokens returns the tokens of the sequence's i-th block
func (bm *BlockManager) blockTokens(seq *Sequence, i int) []int {
	start := i * bm.blockSize
	end := start + bm.blockSize
	if end > seq.TotalLen() {
		end = seq.TotalLen()
	}
	tokens := make([]int, 0, end-start)
	for j := start; j < end; j++ {
		tokens = append(tokens, seq.Token(j))
	}
	return tokens
}

// allocateBlock takes a block out of the free list
func (bm *BlockManager) allocateBlock(blockID int) *Block {
	block := bm.blocks[blockID]
	if block.RefCount != 0 {
		panic("block is already allocated")
	}

	block.Reset()

	for i, id := range bm.freeBlockIDs {
		if id == blockID {
			bm.freeBlockIDs = append(bm.freeBlockIDs[:i], bm.freeBlockIDs[i+1:]...)
			break
		}
	}

	bm.usedBlockIDs[blockID] = true
	return block
}

// deallocateBlock returns a block to the free list
func (bm *BlockManager) deallocateBlock(blockID int) {
	block := bm.blocks[blockID]
	if block.RefCount != 0 {
		panic("block still has references")
	}

	delete(bm.usedBlockIDs, blockID)
	bm.freeBlockIDs = append(bm.freeBlockIDs, blockID)
}

// TryAllocate reserves blocks for the sequence's current context with prefix
// caching. The free-block check is pessimistic: it ignores potential cache
// hits, so a reservation that passes never stalls midway.
func (bm *BlockManager) TryAllocate(seq *Sequence) error {
	if len(seq.BlockTable) > 0 {
		return invariantf("single allocation per sequence",
			"sequence %s already owns %d blocks", seq.RequestID, len(seq.BlockTable))
	}

	numBlocks := bm.numBlocksFor(seq.TotalLen())
	if numBlocks > len(bm.freeBlockIDs) {
		return ErrCacheExhausted
	}

	var h uint64
	cacheMiss := false

	for i := 0; i < numBlocks; i++ {
		tokenIDs := bm.blockTokens(seq, i)

		// Only full blocks participate in the hash chain
		if len(tokenIDs) == bm.blockSize {
			h = bm.ComputeHash(tokenIDs, h)
		} else {
			h = 0
		}

		blockID := -1
		if h != 0 {
			if id, ok := bm.hashToBlockID[h]; ok && tokensEqual(bm.blocks[id].TokenIDs, tokenIDs) {
				blockID = id
			}
		}

		if blockID == -1 {
			cacheMiss = true
		}

		if cacheMiss {
			blockID = bm.freeBlockIDs[0]
			bm.allocateBlock(blockID)
		} else if bm.usedBlockIDs[blockID] {
			bm.blocks[blockID].RefCount++
		} else {
			bm.allocateBlock(blockID)
		}

		if h != 0 {
			bm.blocks[blockID].Update(h, tokenIDs)
			bm.hashToBlockID[h] = blockID
		}

		seq.BlockTable = append(seq.BlockTable, blockID)
	}

	return nil
}

// Free releases the sequence's blocks in reverse allocation order and clears
// its block table. Freeing a sequence that owns no blocks is a double-free.
func (bm *BlockManager) Free(seq *Sequence) error {
	if len(seq.BlockTable) == 0 {
		return invariantf("paired allocate/free",
			"double free of block table for sequence %s", seq.RequestID)
	}

	for i := len(seq.BlockTable) - 1; i >= 0; i-- {
		blockID := seq.BlockTable[i]
		block := bm.blocks[blockID]
		block.RefCount--
		if block.RefCount == 0 {
			bm.deallocateBlock(blockID)
		}
	}

	seq.BlockTable = seq.BlockTable[:0]
	return nil
}

func tokensEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
