package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexibleAmount accepts an amount sent either as a JSON number or a JSON
// string. Raw keeps the exact text the sender used, which is what it signed.
type FlexibleAmount struct {
	Raw   string
	Value decimal.Decimal
	set   bool
}

// IsSet reports whether the field was present and non-null.
func (a FlexibleAmount) IsSet() bool {
	return a.set
}

func (a *FlexibleAmount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = FlexibleAmount{}
		return nil
	}

	var raw string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	} else {
		var num json.Number
		if err := json.Unmarshal(trimmed, &num); err != nil {
			return fmt.Errorf("amount must be a number or numeric string")
		}
		raw = num.String()
	}
	if raw == "" {
		*a = FlexibleAmount{}
		return nil
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("amount %q is not numeric", raw)
	}

	// A JSON number is signed in its canonical form (10.50 arrives as 10.5).
	if trimmed[0] != '"' {
		raw = value.String()
	}

	*a = FlexibleAmount{Raw: raw, Value: value, set: true}
	return nil
}

func (a FlexibleAmount) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("null"), nil
	}
	return json.Marshal(a.Raw)
}
