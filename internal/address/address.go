// Package address defines the canonical resolved address and the override
// engine that applies provider-signalled field replacements to it.
package address

import (
	"strings"

	"github.com/google/uuid"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

// Address is a resolved, canonical address. Key identifies the address
// entity itself; the unit fields describe a sub-location inside it.
type Address struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Country    string  `json:"country,omitempty"`
	Region     string  `json:"region,omitempty"`
	Area       string  `json:"area,omitempty"`
	City       string  `json:"city,omitempty"`
	Settlement string  `json:"settlement,omitempty"`
	Street     string  `json:"street,omitempty"`
	House      string  `json:"house,omitempty"`
	Block      string  `json:"block,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`

	UnitType unit.Type `json:"unit_type,omitempty"`
	UnitName string    `json:"unit_name,omitempty"`

	// Provider names the provider that produced the record.
	Provider string `json:"provider,omitempty"`

	// Overridden keeps the value each overridden path had before its first
	// override. OverrideHistory records every application in order.
	Overridden      map[string]string `json:"overridden,omitempty"`
	OverrideHistory []OverrideRecord  `json:"override_history,omitempty"`
}

// OverrideRecord captures one forced replacement of a field.
type OverrideRecord struct {
	Path     string `json:"path"`
	Original string `json:"original"`
	Override string `json:"override"`
}

// Validate reports records missing mandatory fields.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Key) == "" {
		return rerrors.New(rerrors.ErrCodeMalformedAddress, "address has no key", nil).
			WithDetail("value", a.Value)
	}
	if strings.TrimSpace(a.Value) == "" {
		return rerrors.New(rerrors.ErrCodeMalformedAddress, "address has no value", nil).
			WithDetail("key", a.Key)
	}
	return nil
}

// Clone returns a copy that shares no maps or slices with a.
func (a Address) Clone() Address {
	out := a
	if a.Overridden != nil {
		out.Overridden = make(map[string]string, len(a.Overridden))
		for k, v := range a.Overridden {
			out.Overridden[k] = v
		}
	}
	if a.OverrideHistory != nil {
		out.OverrideHistory = append([]OverrideRecord(nil), a.OverrideHistory...)
	}
	return out
}

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("addresolve:address"))

// DeriveKey builds a stable key for providers that have no native ID.
// Values differing only in case or spacing map to the same key.
func DeriveKey(value string) string {
	canon := strings.Join(strings.Fields(strings.ToLower(value)), " ")
	return uuid.NewSHA1(keyNamespace, []byte(canon)).String()
}

// Filter drops records that fail Validate and returns the rest in order.
func Filter(in []Address) []Address {
	out := in[:0:0]
	for _, a := range in {
		if a.Validate() == nil {
			out = append(out, a)
		}
	}
	return out
}
