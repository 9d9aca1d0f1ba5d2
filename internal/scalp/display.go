package scalp

import (
	"fmt"
	"io"
)

// PriceBoard rewrites a single console line in place, keeping the streaming
// price visible without scrolling the log output. Purely cosmetic; a nil
// board is a no-op.
type PriceBoard struct {
	w    io.Writer
	row  int
	last float64
}

// NewPriceBoard creates a board writing to w on the given terminal row.
func NewPriceBoard(w io.Writer, row int) *PriceBoard {
	return &PriceBoard{w: w, row: row}
}

// Watch renders the pre-trigger readout: current price against the level.
func (b *PriceBoard) Watch(price, triggerPrice float64) {
	if b == nil || price == b.last {
		return
	}
	b.last = price
	b.put(fmt.Sprintf("currentprice: %.1f\t\ttriggerprice: %.1f", price, triggerPrice))
}

// Order renders the live-order readout with the current working values.
func (b *PriceBoard) Order(price float64, intent OrderIntent) {
	if b == nil || price == b.last {
		return
	}
	b.last = price
	b.put(fmt.Sprintf("currentprice: %.1f\t\torderprice: %.1f\t\tamount: %.3f\t\ttarget: %.1f\t\tstoploss: %.1f",
		price, intent.EntryPrice, intent.Size, intent.TakeProfit, intent.StopLoss))
}

// put saves the cursor, writes the line at the board row and restores it.
func (b *PriceBoard) put(line string) {
	fmt.Fprintf(b.w, "\x1b7\x1b[%d;0f%s\x1b[K\x1b8", b.row, line)
}
