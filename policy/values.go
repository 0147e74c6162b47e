package policy

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// lenient decodes data into out, resetting out to its zero value when the
// payload does not have the expected shape. Exports degrade malformed
// fragments to blank cells instead of failing the whole run.
func lenient[T any](data []byte, out *T) error {
	if err := json.Unmarshal(data, out); err != nil {
		var zero T
		*out = zero
	}
	return nil
}

// compactJSON renders a raw JSON fragment without insignificant whitespace.
func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// Scalar is a JSON value displayed as text. Strings pass through verbatim and
// every other token keeps its literal form, so numbers survive with the exact
// digits the API sent. Truthy follows the conventions of the display
// fallbacks: empty strings, zero, false and null do not count as usable.
type Scalar struct {
	text   string
	truthy bool
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.text, s.truthy = str, str != ""
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		s.text, s.truthy = string(data), num != 0
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		s.text, s.truthy = string(data), b
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		s.text, s.truthy = "", false
		return nil
	}
	s.text, s.truthy = compactJSON(data), true
	return nil
}

// String returns the display text. The zero Scalar renders as "".
func (s Scalar) String() string { return s.text }

// Truthy reports whether the value is usable as a display candidate.
func (s Scalar) Truthy() bool { return s.truthy }

// Amount is a limit amount. Strings pass through verbatim, trailing zeros
// and all; JSON numbers decode through decimal so values too large for a
// float keep their digits.
type Amount struct {
	dec     decimal.Decimal
	numeric bool
	text    string
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.text = s
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err == nil {
		a.dec, a.numeric = d, true
		return nil
	}
	var sc Scalar
	_ = sc.UnmarshalJSON(data)
	a.text = sc.String()
	return nil
}

func (a Amount) String() string {
	if a.numeric {
		return a.dec.String()
	}
	return a.text
}

// NetFlag is the is_net_amount marker, rendered capitalised the way amount
// limit cells have always read. Odd payload values keep their literal text.
type NetFlag struct {
	text string
}

func (f *NetFlag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			f.text = "True"
		} else {
			f.text = "False"
		}
		return nil
	}
	var s Scalar
	_ = s.UnmarshalJSON(data)
	f.text = s.String()
	return nil
}

// String renders the flag, defaulting to "False" when the field was absent.
func (f NetFlag) String() string {
	if f.text == "" {
		return "False"
	}
	return f.text
}

// EntityRef references a user, group, vault or contact. Current responses
// carry objects, older payloads bare strings; both decode. Whatever else
// arrives keeps its literal token so it still shows up in the export.
type EntityRef struct {
	Name  Scalar `json:"name"`
	Email Scalar `json:"email"`
	ID    Scalar `json:"id"`

	text   string
	object bool
}

func (e *EntityRef) UnmarshalJSON(data []byte) error {
	type plain EntityRef
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*e = EntityRef(p)
		e.object = true
		return nil
	}
	var s Scalar
	_ = s.UnmarshalJSON(data)
	*e = EntityRef{text: s.String()}
	return nil
}

// DisplayName resolves a human-friendly name. For object refs the candidate
// fields are tried in order (default name, email, id) and the first usable
// one wins, falling back to "Unknown". Non-object refs render as their
// literal token.
func (e EntityRef) DisplayName(fields ...string) string {
	if !e.object {
		return e.text
	}
	if len(fields) == 0 {
		fields = []string{"name", "email", "id"}
	}
	for _, field := range fields {
		var s Scalar
		switch field {
		case "name":
			s = e.Name
		case "email":
			s = e.Email
		case "id":
			s = e.ID
		}
		if s.Truthy() {
			return s.String()
		}
	}
	return "Unknown"
}

// AddressValue is a recipient address that may arrive as a bare string or as
// an object carrying one of several address fields.
type AddressValue struct {
	Address Scalar `json:"address"`
	HexRepr Scalar `json:"hex_repr"`
	Value   Scalar `json:"value"`

	text   string
	object bool
	raw    string
}

func (a *AddressValue) UnmarshalJSON(data []byte) error {
	type plain AddressValue
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*a = AddressValue(p)
		a.object = true
		a.raw = compactJSON(data)
		return nil
	}
	var s Scalar
	_ = s.UnmarshalJSON(data)
	*a = AddressValue{text: s.String()}
	return nil
}

// Format renders the address. Objects prefer address, then hex_repr, then
// value, and degrade to their compact JSON form when none of those is set.
func (a AddressValue) Format() string {
	if !a.object {
		return a.text
	}
	for _, s := range []Scalar{a.Address, a.HexRepr, a.Value} {
		if s.Truthy() {
			return s.String()
		}
	}
	return a.raw
}

// The API sometimes omits, nulls or reshapes list fields. These list types
// absorb such payloads by degrading to empty instead of failing the decode.

// RefList is a tolerant list of entity references.
type RefList []EntityRef

func (l *RefList) UnmarshalJSON(data []byte) error {
	type plain RefList
	return lenient(data, (*plain)(l))
}

// ScalarList is a tolerant list of display scalars.
type ScalarList []Scalar

func (l *ScalarList) UnmarshalJSON(data []byte) error {
	type plain ScalarList
	return lenient(data, (*plain)(l))
}

// AddressList is a tolerant list of address values.
type AddressList []AddressValue

func (l *AddressList) UnmarshalJSON(data []byte) error {
	type plain AddressList
	return lenient(data, (*plain)(l))
}

// ContactList is a tolerant list of address book contacts.
type ContactList []Contact

func (l *ContactList) UnmarshalJSON(data []byte) error {
	type plain ContactList
	return lenient(data, (*plain)(l))
}

// DappList is a tolerant list of dapp references.
type DappList []Dapp

func (l *DappList) UnmarshalJSON(data []byte) error {
	type plain DappList
	return lenient(data, (*plain)(l))
}

// ChainList is a tolerant list of chain descriptors.
type ChainList []ChainInfo

func (l *ChainList) UnmarshalJSON(data []byte) error {
	type plain ChainList
	return lenient(data, (*plain)(l))
}

// AssetList is a tolerant list of asset conditions.
type AssetList []Asset

func (l *AssetList) UnmarshalJSON(data []byte) error {
	type plain AssetList
	return lenient(data, (*plain)(l))
}

// ApprovalGroupList is a tolerant list of approval group settings.
type ApprovalGroupList []ApprovalGroup

func (l *ApprovalGroupList) UnmarshalJSON(data []byte) error {
	type plain ApprovalGroupList
	return lenient(data, (*plain)(l))
}
