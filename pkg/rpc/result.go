package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tally-network/pollsync/pkg/utils"
)

// QueryResult is the envelope contract-read endpoints return. Node versions
// differ in which renderings they populate: display carries a human
// rendering (decimal strings with digit group separators, result wrappers),
// output carries the raw contract return (hex quantities, result wrappers,
// plain numbers). Either side may be missing.
type QueryResult struct {
	Display json.RawMessage `json:"display,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}

// DecodeError reports that no strategy could extract a value. It carries
// the strategies tried and a snapshot of both renderings so a node quirk
// can be diagnosed from logs alone.
type DecodeError struct {
	Tried   []string
	Display string
	Output  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable query result (tried %s): display=%s output=%s",
		strings.Join(e.Tried, ","), e.Display, e.Output)
}

type decodeOutcome int

const (
	decodeMiss decodeOutcome = iota
	decodeHit
	// decodeZeroAmbiguous marks a raw-quantity zero, which the contract
	// also emits for "no value"; it only stands if nothing else applies.
	decodeZeroAmbiguous
)

type decodeStrategy struct {
	name string
	fn   func(QueryResult) (uint64, decodeOutcome)
}

// Strategies are ordered: display renderings are preferred because nodes
// that emit both keep display in sync with the queried state, then raw
// output forms. First hit wins.
var decodeStrategies = []decodeStrategy{
	{"display-ok", decodeDisplayOk},
	{"display-scalar", decodeDisplayScalar},
	{"display-scan", decodeDisplayScan},
	{"output-ok", decodeOutputOk},
	{"output-quantity", decodeOutputQuantity},
	{"output-number", decodeOutputNumber},
}

// Decode is shorthand for Decode(r).
func (r QueryResult) Decode() (uint64, error) {
	return Decode(r)
}

// Decode normalizes a query result into the unsigned integer it carries.
// It never panics. When every strategy misses it returns a *DecodeError,
// except that an ambiguous zero seen on the raw-quantity path is returned
// as 0 when no other strategy applied.
func Decode(res QueryResult) (uint64, error) {
	tried := make([]string, 0, len(decodeStrategies))
	sawAmbiguousZero := false
	for _, s := range decodeStrategies {
		v, outcome := s.fn(res)
		if outcome == decodeHit {
			return v, nil
		}
		if outcome == decodeZeroAmbiguous {
			sawAmbiguousZero = true
		}
		tried = append(tried, s.name)
	}
	if sawAmbiguousZero {
		return 0, nil
	}
	return 0, &DecodeError{
		Tried:   tried,
		Display: snippet(res.Display),
		Output:  snippet(res.Output),
	}
}

// decodeDisplayOk unwraps a display-side result object ({"Ok": …} or
// {"ok": …}) whose value is display-numeric.
func decodeDisplayOk(res QueryResult) (uint64, decodeOutcome) {
	inner, ok := okField(res.Display)
	if !ok {
		return 0, decodeMiss
	}
	if v, ok := displayValue(inner); ok {
		return v, decodeHit
	}
	return 0, decodeMiss
}

// decodeDisplayScalar takes a display rendering that is itself a bare
// numeric: a JSON number or a grouped decimal string like "1,234".
func decodeDisplayScalar(res QueryResult) (uint64, decodeOutcome) {
	if v, ok := displayValue(res.Display); ok {
		return v, decodeHit
	}
	return 0, decodeMiss
}

// decodeDisplayScan walks a display object's values in document order and
// takes the first display-numeric leaf. Document order keeps the result
// stable across runs, which map iteration would not.
func decodeDisplayScan(res QueryResult) (uint64, decodeOutcome) {
	if !isJSONObject(res.Display) {
		return 0, decodeMiss
	}
	if v, ok := firstDisplayNumeric(res.Display); ok {
		return v, decodeHit
	}
	return 0, decodeMiss
}

// decodeOutputOk unwraps an output-side result object whose value is a raw
// quantity (0x-hex or decimal) or a plain number.
func decodeOutputOk(res QueryResult) (uint64, decodeOutcome) {
	inner, ok := okField(res.Output)
	if !ok {
		return 0, decodeMiss
	}
	if v, ok := quantityValue(inner); ok {
		return v, decodeHit
	}
	return 0, decodeMiss
}

// decodeOutputQuantity takes an output rendering that is a bare quantity
// string. Zero is ambiguous here: contracts render both "no value" and a
// genuine zero as 0x0 on this path.
func decodeOutputQuantity(res QueryResult) (uint64, decodeOutcome) {
	raw := bytes.TrimSpace(res.Output)
	if len(raw) == 0 || raw[0] != '"' {
		return 0, decodeMiss
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, decodeMiss
	}
	v, err := utils.ParseQuantity(s)
	if err != nil {
		return 0, decodeMiss
	}
	if v == 0 {
		return 0, decodeZeroAmbiguous
	}
	return v, decodeHit
}

// decodeOutputNumber takes an output rendering that is a plain JSON number.
// Zero is definite on this path.
func decodeOutputNumber(res QueryResult) (uint64, decodeOutcome) {
	raw := bytes.TrimSpace(res.Output)
	if len(raw) == 0 || raw[0] == '"' || raw[0] == '{' || raw[0] == '[' {
		return 0, decodeMiss
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, decodeMiss
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, decodeMiss
	}
	return v, decodeHit
}

// okField unwraps {"Ok": …} / {"ok": …} result objects.
func okField(raw json.RawMessage) (json.RawMessage, bool) {
	if !isJSONObject(raw) {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	if v, ok := m["Ok"]; ok {
		return v, true
	}
	if v, ok := m["ok"]; ok {
		return v, true
	}
	return nil, false
}

// displayValue parses a scalar display rendering: a grouped decimal string
// or a plain JSON integer.
func displayValue(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		return utils.DisplayNumeric(s)
	case '{', '[':
		return 0, false
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		v, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

// quantityValue parses a scalar output rendering: a 0x-hex or decimal
// string, or a plain JSON integer.
func quantityValue(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := utils.ParseQuantity(s)
		if err != nil {
			return 0, false
		}
		return v, true
	case '{', '[':
		return 0, false
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		v, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

// firstDisplayNumeric streams raw's tokens and returns the first value
// (object keys excluded) that parses as display-numeric, descending into
// nested containers in document order.
func firstDisplayNumeric(raw json.RawMessage) (uint64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	type frame struct {
		inObject  bool
		expectKey bool
	}
	var stack []frame
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, false
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				if len(stack) > 0 && stack[len(stack)-1].inObject {
					// Container consumed a value slot; a key follows it.
					stack[len(stack)-1].expectKey = true
				}
				stack = append(stack, frame{inObject: t == '{', expectKey: t == '{'})
			case '}', ']':
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return 0, false
				}
			}
		default:
			if len(stack) == 0 {
				return 0, false
			}
			top := &stack[len(stack)-1]
			if top.inObject && top.expectKey {
				top.expectKey = false
				continue
			}
			if top.inObject {
				top.expectKey = true
			}
			switch v := t.(type) {
			case string:
				if n, ok := utils.DisplayNumeric(v); ok {
					return n, true
				}
			case json.Number:
				if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
					return n, true
				}
			}
		}
	}
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// snippet bounds a raw rendering for error messages.
func snippet(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "<absent>"
	}
	const max = 256
	s := string(raw)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
