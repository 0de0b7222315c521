package trader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hedgegrid/grid"
)

// ErrMalformedOrderID marks a client order id that does not follow the
// STRATEGY-SIDE-LEVEL-TIMESTAMP encoding. Reconciliation treats such orders
// conservatively and never touches them.
var ErrMalformedOrderID = errors.New("malformed client order id")

// OrderID is the decoded form of a client order id. It encodes enough to
// identify an order's origin without a side-channel lookup: the strategy tag,
// grid side, 1-based grid level and placement time in epoch milliseconds.
type OrderID struct {
	Strategy  string
	Side      grid.Side
	Level     int
	Timestamp int64
}

// FormatOrderID renders the wire form, e.g. "HG1-LONG-05-1234567890123".
// The level is zero-padded to two digits.
func FormatOrderID(strategy string, side grid.Side, level int, timestampMs int64) string {
	return fmt.Sprintf("%s-%s-%02d-%d", strategy, side, level, timestampMs)
}

// String renders the OrderID back to its wire form. Parse then String
// reproduces the original input exactly.
func (id OrderID) String() string {
	return FormatOrderID(id.Strategy, id.Side, id.Level, id.Timestamp)
}

// ParseOrderID decodes a client order id. The strategy tag may itself
// contain hyphens, so the id is split from the right: the last three
// segments are timestamp, level and side. Any violation returns
// ErrMalformedOrderID with the offending string attached.
func ParseOrderID(s string) (OrderID, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 4 {
		return OrderID{}, fmt.Errorf("%w: %q has %d segments, want at least 4", ErrMalformedOrderID, s, len(parts))
	}

	n := len(parts)
	tsPart, levelPart, sidePart := parts[n-1], parts[n-2], parts[n-3]
	strategy := strings.Join(parts[:n-3], "-")
	if strategy == "" {
		return OrderID{}, fmt.Errorf("%w: %q has an empty strategy tag", ErrMalformedOrderID, s)
	}

	side, err := grid.ParseSide(sidePart)
	if err != nil {
		return OrderID{}, fmt.Errorf("%w: %q: %v", ErrMalformedOrderID, s, err)
	}

	if len(levelPart) < 2 {
		return OrderID{}, fmt.Errorf("%w: %q level segment %q is not zero-padded", ErrMalformedOrderID, s, levelPart)
	}
	level, err := strconv.Atoi(levelPart)
	if err != nil || level < 1 {
		return OrderID{}, fmt.Errorf("%w: %q has invalid level segment %q", ErrMalformedOrderID, s, levelPart)
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil || ts <= 0 {
		return OrderID{}, fmt.Errorf("%w: %q has invalid timestamp segment %q", ErrMalformedOrderID, s, tsPart)
	}

	return OrderID{Strategy: strategy, Side: side, Level: level, Timestamp: ts}, nil
}
