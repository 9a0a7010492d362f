// Package validator turns raw archive lines into typed ticks.
//
// A line passes only if it carries the ten canonical fields, every enum and
// identifier is well formed, every amount is a finite positive number, the
// symbol is allowed, the timestamp parses and the three reported amounts agree
// with the values recomputed from size and price within a 10% relative
// tolerance. Anything else is classified as a
// *Rejection and is never repaired.
package validator

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/navid-fn/tickarchive/internal/models"
)

const (
	fieldCount = 10

	// tolerance is the accepted relative error between a computed and a reported amount.
	tolerance = 0.1

	satoshisPerCoin = 1e8
)

// Canonical field names, in archive column order.
const (
	FieldTimestamp       = "timestamp"
	FieldSymbol          = "symbol"
	FieldSide            = "side"
	FieldSize            = "size"
	FieldPrice           = "price"
	FieldTickDirection   = "tickDirection"
	FieldTradeID         = "trdMatchID"
	FieldGrossValue      = "grossValue"
	FieldHomeNotional    = "homeNotional"
	FieldForeignNotional = "foreignNotional"
)

var fieldNames = [fieldCount]string{
	FieldTimestamp, FieldSymbol, FieldSide, FieldSize, FieldPrice,
	FieldTickDirection, FieldTradeID, FieldGrossValue, FieldHomeNotional, FieldForeignNotional,
}

// numeric marks the columns parsed as floats.
var numeric = [fieldCount]bool{3: true, 4: true, 7: true, 8: true, 9: true}

var (
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	timeOnlyLayouts = []string{"15:04:05", "15:04"}
)

// Validator validates rows against an accepted-symbol allow-list.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	accepted map[string]struct{}
}

// New creates a Validator. An empty symbols list accepts every symbol.
func New(symbols []string) *Validator {
	v := &Validator{}
	if len(symbols) > 0 {
		v.accepted = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			v.accepted[s] = struct{}{}
		}
	}
	return v
}

// Accepts reports whether symbol passes the allow-list.
func (v *Validator) Accepts(symbol string) bool {
	if len(v.accepted) == 0 {
		return true
	}
	_, ok := v.accepted[symbol]
	return ok
}

// Validate parses one raw line. header is the first line seen for the day, or ""
// while it has not been captured yet. day anchors timestamps that carry no date.
// A non-nil error is always a *Rejection.
func (v *Validator) Validate(line, header string, day time.Time) (models.Tick, error) {
	if line == "" {
		return models.Tick{}, reject(EmptyRow, "")
	}

	// Upstream chunk joins sometimes leave a single leading separator.
	line = strings.TrimPrefix(line, ",")

	if header != "" && line == header {
		return models.Tick{}, reject(HeaderRow, line)
	}

	var raw [fieldCount]string
	for i, cell := range strings.SplitN(line, ",", fieldCount+1) {
		if i == fieldCount {
			break
		}
		raw[i] = cell
	}

	var nums [fieldCount]float64
	for i := range raw {
		if numeric[i] {
			nums[i] = parseNumber(raw[i])
			if !(nums[i] > 0) {
				return models.Tick{}, &Rejection{Kind: MissingField, Field: fieldNames[i], Value: raw[i]}
			}
			continue
		}
		if raw[i] == "" {
			return models.Tick{}, &Rejection{Kind: MissingField, Field: fieldNames[i]}
		}
	}

	tick := models.Tick{
		Symbol:          raw[1],
		Side:            models.Side(raw[2]),
		Size:            nums[3],
		Price:           nums[4],
		TickDirection:   models.TickDirection(raw[5]),
		TradeID:         raw[6],
		GrossValue:      nums[7],
		HomeNotional:    nums[8],
		ForeignNotional: nums[9],
	}

	if !isCanonicalUUID(tick.TradeID) {
		return models.Tick{}, reject(InvalidTradeID, tick.TradeID)
	}
	if !tick.Side.Valid() {
		return models.Tick{}, reject(InvalidSide, raw[2])
	}
	if !tick.TickDirection.Valid() {
		return models.Tick{}, reject(InvalidTickDirection, raw[5])
	}
	if !v.Accepts(tick.Symbol) {
		return models.Tick{}, reject(UnacceptedSymbol, tick.Symbol)
	}

	isPerp := strings.HasSuffix(tick.Symbol, "USD")
	isAlt := !strings.HasPrefix(tick.Symbol, "XBT")

	ts, ok := parseTimestamp(raw[0], day)
	if !ok {
		return models.Tick{}, reject(InvalidTimestamp, raw[0])
	}
	tick.Timestamp = ts.UnixMilli()

	if rej := checkAmounts(tick, isPerp, isAlt); rej != nil {
		return models.Tick{}, rej
	}
	return tick, nil
}

// checkAmounts recomputes the notionals and gross value from size and price.
// Perpetuals are inverse contracts: size is already quoted in USD.
func checkAmounts(t models.Tick, isPerp, isAlt bool) *Rejection {
	foreign := t.Size * t.Price
	home := t.Size
	gross := t.ForeignNotional * satoshisPerCoin
	if isPerp {
		foreign = t.Size
		home = t.Size / t.Price
		gross = t.HomeNotional * satoshisPerCoin
	}

	if !within(foreign, t.ForeignNotional) {
		return mismatch(FieldForeignNotional, foreign, t.ForeignNotional)
	}
	if !within(home, t.HomeNotional) {
		return mismatch(FieldHomeNotional, home, t.HomeNotional)
	}
	// Alt-coin perpetuals have no reliable satoshi conversion.
	if !(isAlt && isPerp) && !within(gross, t.GrossValue) {
		return mismatch(FieldGrossValue, gross, t.GrossValue)
	}
	return nil
}

func within(computed, reported float64) bool {
	return math.Abs(computed-reported) <= tolerance*math.Abs(reported)
}

func mismatch(field string, computed, reported float64) *Rejection {
	return &Rejection{Kind: AmountMismatch, Field: field, Computed: computed, Reported: reported}
}

// parseNumber returns NaN for anything that is not a finite number.
func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func isCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// parseTimestamp accepts the archive form "2006-01-02D15:04:05.000000000" as
// well as plain ISO date-times. Values without a zone are read as UTC.
func parseTimestamp(s string, day time.Time) (time.Time, bool) {
	s = strings.Replace(strings.TrimSpace(s), "D", "T", 1)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	for _, layout := range timeOnlyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			y, m, d := day.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), true
		}
	}
	return time.Time{}, false
}
