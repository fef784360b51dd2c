package filter

import "fmt"

// BlockSmoother averages samples in blocks of a fixed size. After every
// window samples the running sum restarts from the next sample.
type BlockSmoother struct {
	sum    uint32
	count  uint16
	window uint16
}

func NewBlockSmoother(window uint16) (*BlockSmoother, error) {
	if window == 0 {
		return nil, fmt.Errorf("%w: block smoother window must be > 0", ErrInvalidWindow)
	}
	return &BlockSmoother{window: window}, nil
}

func (b *BlockSmoother) Process(value uint16) {
	if b.count >= b.window {
		b.count = 0
		b.sum = 0
	}
	b.count++
	b.sum += uint32(value)
}

// Output returns the mean of the current block. It is 0 until the first
// sample arrives.
func (b *BlockSmoother) Output() uint16 {
	if b.count == 0 {
		return 0
	}
	return uint16(b.sum / uint32(b.count))
}

// Count reports how many samples the current block holds.
func (b *BlockSmoother) Count() uint16 {
	return b.count
}
