package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse failure kinds. The pipeline records which stage of extraction failed;
// both leave the account untouched.
var (
	ErrNoJSONFound    = errors.New("decision: no json object found in response")
	ErrSchemaMismatch = errors.New("decision: json does not match the decision schema")
)

// rawDecision mirrors the wire schema the prompt asks models to emit. Numeric
// fields use flexNumber so bare and quoted forms both decode.
type rawDecision struct {
	Action        string     `json:"action"`
	Symbol        string     `json:"symbol"`
	QuantityUSD   flexNumber `json:"quantity_usd"`
	Leverage      flexNumber `json:"leverage"`
	StopLossPct   flexNumber `json:"stop_loss_pct"`
	TakeProfitPct flexNumber `json:"take_profit_pct"`
	Confidence    flexNumber `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
	Strategy      string     `json:"strategy"`
}

// flexNumber accepts numbers whether the model emits them bare, quoted, or
// null.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	if s == "null" {
		s = ""
	}
	*f = flexNumber(s)
	return nil
}

// Parse extracts a single decision object from raw model output. Models wrap
// the payload in markdown fences, chain-of-thought prose, or both; extraction
// scans for the first balanced JSON object that decodes to the schema.
// Equivalent payloads parse identically regardless of wrapping.
func Parse(raw string) (*Decision, error) {
	candidates := jsonCandidates(raw)
	if len(candidates) == 0 {
		return nil, ErrNoJSONFound
	}

	var lastErr error
	for _, candidate := range candidates {
		dec, err := decodeDecision(candidate)
		if err == nil {
			return dec, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoJSONFound
}

// jsonCandidates returns balanced {...} spans in order of appearance, fenced
// blocks first. Fences are the common case and carry the cleanest payload.
func jsonCandidates(raw string) []string {
	var out []string
	for _, block := range fencedBlocks(raw) {
		out = append(out, balancedObjects(block)...)
	}
	out = append(out, balancedObjects(raw)...)
	return out
}

// fencedBlocks returns the inner text of ``` fenced regions, tolerating a
// language tag after the opening fence.
func fencedBlocks(raw string) []string {
	var blocks []string
	rest := raw
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && nl < 24 {
			// Skip a language tag such as "json".
			tag := strings.TrimSpace(rest[:nl])
			if tag == "" || isFenceTag(tag) {
				rest = rest[nl+1:]
			}
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			blocks = append(blocks, rest)
			return blocks
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// balancedObjects scans text for top-level {...} spans, honouring string
// literals and escapes so braces inside reasoning text do not break the scan.
func balancedObjects(text string) []string {
	var spans []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			break
		}
		spans = append(spans, text[i:end+1])
		i = end
	}
	return spans
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func decodeDecision(candidate string) (*Decision, error) {
	var raw rawDecision
	dec := json.NewDecoder(strings.NewReader(candidate))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	action, ok := ParseAction(raw.Action)
	if !ok {
		return nil, fmt.Errorf("%w: action %q", ErrSchemaMismatch, raw.Action)
	}

	out := &Decision{
		Action:    action,
		Symbol:    strings.ToUpper(strings.TrimSpace(raw.Symbol)),
		Reasoning: strings.TrimSpace(raw.Reasoning),
		Strategy:  strings.TrimSpace(raw.Strategy),
	}

	var err error
	if out.QuantityUSD, err = decimalField(raw.QuantityUSD, "quantity_usd"); err != nil {
		return nil, err
	}
	if out.StopLossPct, err = decimalField(raw.StopLossPct, "stop_loss_pct"); err != nil {
		return nil, err
	}
	if out.TakeProfitPct, err = decimalField(raw.TakeProfitPct, "take_profit_pct"); err != nil {
		return nil, err
	}
	if out.Leverage, err = intField(raw.Leverage, "leverage"); err != nil {
		return nil, err
	}
	if out.Confidence, err = intField(raw.Confidence, "confidence"); err != nil {
		return nil, err
	}
	return out, nil
}

func decimalField(n flexNumber, name string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q", ErrSchemaMismatch, name, n)
	}
	return d, nil
}

func intField(n flexNumber, name string) (int, error) {
	if n == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("%w: %s %q", ErrSchemaMismatch, name, n)
	}
	return int(d.IntPart()), nil
}
