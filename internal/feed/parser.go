// Package feed reads the line-oriented order event grammar
// (`<ts> A <uid> <B|S> <price> <shares>` / `<ts> R <uid> <shares>`)
// and applies it to an orderbook.Book.
package feed

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lhoste/lobcore/internal/orderbook"
	"github.com/lhoste/lobcore/internal/orders"
)

// AddEvent is a parsed "A" record.
type AddEvent struct {
	Timestamp int64
	UID       string
	IsBid     bool
	Price     int64
	Shares    int64
}

// ReduceEvent is a parsed "R" record.
type ReduceEvent struct {
	Timestamp int64
	UID       string
	Shares    int64
}

// ParseError reports the line number and text of a malformed record.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("feed: line %d: %v (%q)", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine parses a single record. An unknown operation character in
// column 2 is reported as an error, matching the grammar's rule that
// unknown operations terminate input.
func ParseLine(line string) (interface{}, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}

	switch fields[1] {
	case "A":
		if len(fields) != 6 {
			return nil, fmt.Errorf("add record expects 6 fields, got %d", len(fields))
		}
		var isBid bool
		switch fields[3] {
		case "B":
			isBid = true
		case "S":
			isBid = false
		default:
			return nil, fmt.Errorf("invalid side %q: must be B or S", fields[3])
		}

		priceFloat, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", fields[4], err)
		}
		shares, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shares %q: %w", fields[5], err)
		}
		if shares <= 0 {
			return nil, fmt.Errorf("shares must be positive, got %d", shares)
		}

		return AddEvent{
			Timestamp: ts,
			UID:       fields[2],
			IsBid:     isBid,
			Price:     orders.ParsePrice(priceFloat),
			Shares:    shares,
		}, nil

	case "R":
		if len(fields) != 4 {
			return nil, fmt.Errorf("reduce record expects 4 fields, got %d", len(fields))
		}
		shares, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shares %q: %w", fields[3], err)
		}
		if shares <= 0 {
			return nil, fmt.Errorf("shares must be positive, got %d", shares)
		}

		return ReduceEvent{
			Timestamp: ts,
			UID:       fields[2],
			Shares:    shares,
		}, nil

	default:
		return nil, fmt.Errorf("unknown operation %q", fields[1])
	}
}

// Apply drives book from the event stream r, line by line, until EOF or
// the first parse error. It returns the number of records applied.
//
// A parse error never reaches book: the grammar's "unknown operation
// terminates input" rule is enforced here, one layer above the core.
func Apply(r io.Reader, book *orderbook.Book) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		event, err := ParseLine(line)
		if err != nil {
			return count, &ParseError{Line: lineNum, Text: line, Err: err}
		}

		switch e := event.(type) {
		case AddEvent:
			if _, err := book.AddOrder(e.UID, e.Timestamp, e.Shares, e.Price, e.IsBid); err != nil {
				return count, &ParseError{Line: lineNum, Text: line, Err: err}
			}
		case ReduceEvent:
			_ = book.ReduceOrder(e.UID, e.Shares) // unknown uid is a silent no-op
		}

		count++
	}

	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}
