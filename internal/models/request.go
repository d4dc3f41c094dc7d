package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// IdentifyRequest represents the incoming request body.
//
// phoneNumber may arrive as a JSON string or a JSON number; a number decodes
// to its plain decimal digits and must be whole. Blank values decode as absent.
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// UnmarshalJSON accepts a numeric phoneNumber in addition to a string.
func (r *IdentifyRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email       *string         `json:"email"`
		PhoneNumber json.RawMessage `json:"phoneNumber"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	phone, err := decodePhoneNumber(raw.PhoneNumber)
	if err != nil {
		return err
	}

	r.Email = blankToNil(raw.Email)
	r.PhoneNumber = blankToNil(phone)
	return nil
}

func decodePhoneNumber(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("phoneNumber: %w", err)
		}
		return &s, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("phoneNumber must be a string or number: %w", err)
	}
	// 1e3 and 1000.0 name the same number as 1000.
	r, ok := new(big.Rat).SetString(n.String())
	if !ok || !r.IsInt() {
		return nil, fmt.Errorf("phoneNumber must be a whole number, got %s", n)
	}
	s := r.Num().String()
	return &s, nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
