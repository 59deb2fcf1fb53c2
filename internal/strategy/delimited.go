package strategy

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dray-io/wireframe/internal/decoder"
)

// ErrItemTooLong is returned when no delimiter appears within the maximum
// item length.
var ErrItemTooLong = errors.New("strategy: item too long")

// DelimitedStrategy yields items terminated by a delimiter byte. The item
// excludes the delimiter and aliases the stream buffer.
//
// It remembers how far it has scanned the current window, so repeated probes
// of a growing window only look at new bytes.
type DelimitedStrategy struct {
	delim   byte
	max     int
	scanned int
}

// Delimited returns a strategy splitting on delim. max bounds an item
// including its delimiter; zero means unbounded, leaving the stream capacity
// as the only limit.
func Delimited(delim byte, max int) *DelimitedStrategy {
	if max < 0 {
		panic("strategy: negative max item length")
	}
	return &DelimitedStrategy{delim: delim, max: max}
}

// Lines splits on '\n'.
func Lines(max int) *DelimitedStrategy {
	return Delimited('\n', max)
}

// Decode implements decoder.Strategy.
func (d *DelimitedStrategy) Decode(w []byte) ([]byte, []byte, error) {
	if d.scanned > len(w) {
		d.scanned = 0
	}

	limit := len(w)
	if d.max > 0 && limit > d.max {
		limit = d.max
	}

	if i := bytes.IndexByte(w[d.scanned:limit], d.delim); i >= 0 {
		end := d.scanned + i
		d.scanned = 0
		return w[:end:end], w[end+1:], nil
	}

	if d.max > 0 && len(w) >= d.max {
		d.scanned = 0
		return nil, nil, fmt.Errorf("%w: no delimiter within %d bytes", ErrItemTooLong, d.max)
	}
	d.scanned = limit
	return nil, nil, decoder.NeedMore(0)
}

// Reset forgets the scan offset. Call it after discarding buffered bytes
// from the stream this strategy decodes.
func (d *DelimitedStrategy) Reset() {
	d.scanned = 0
}

var _ decoder.Strategy[[]byte] = (*DelimitedStrategy)(nil)
