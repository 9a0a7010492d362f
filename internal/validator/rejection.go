package validator

import (
	"fmt"
	"strconv"
)

// Kind classifies why a row was rejected.
type Kind int

const (
	EmptyRow Kind = iota
	HeaderRow
	MissingField
	InvalidTradeID
	InvalidSide
	InvalidTickDirection
	UnacceptedSymbol
	InvalidTimestamp
	AmountMismatch
	// OversizedRow is assigned by the line reader, not by Validate.
	OversizedRow
)

// Kinds lists every rejection kind in declaration order.
var Kinds = []Kind{
	EmptyRow, HeaderRow, MissingField, InvalidTradeID, InvalidSide,
	InvalidTickDirection, UnacceptedSymbol, InvalidTimestamp, AmountMismatch,
	OversizedRow,
}

func (k Kind) String() string {
	switch k {
	case EmptyRow:
		return "empty_row"
	case HeaderRow:
		return "header_row"
	case MissingField:
		return "missing_field"
	case InvalidTradeID:
		return "invalid_trade_id"
	case InvalidSide:
		return "invalid_side"
	case InvalidTickDirection:
		return "invalid_tick_direction"
	case UnacceptedSymbol:
		return "unaccepted_symbol"
	case InvalidTimestamp:
		return "invalid_timestamp"
	case AmountMismatch:
		return "amount_mismatch"
	case OversizedRow:
		return "oversized_row"
	default:
		return "unknown"
	}
}

// Rejection is returned by Validate for every row that does not become a Tick.
// Field is set for MissingField and AmountMismatch; Computed and Reported only
// for AmountMismatch.
type Rejection struct {
	Kind     Kind
	Field    string
	Value    string
	Computed float64
	Reported float64
}

func (r *Rejection) Error() string {
	switch r.Kind {
	case EmptyRow:
		return "empty row"
	case HeaderRow:
		return "header row"
	case OversizedRow:
		return fmt.Sprintf("row longer than %s bytes", r.Value)
	case MissingField:
		return fmt.Sprintf("invalid %s: %q", r.Field, r.Value)
	case AmountMismatch:
		return fmt.Sprintf("invalid %s: %s != %s", r.Field, num(r.Computed), num(r.Reported))
	default:
		return fmt.Sprintf("%s: %q", r.Kind, r.Value)
	}
}

func num(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func reject(kind Kind, value string) *Rejection {
	return &Rejection{Kind: kind, Value: value}
}
