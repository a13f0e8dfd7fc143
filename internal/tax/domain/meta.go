package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CurrentMetaVersion is written on every item saved by this service.
const CurrentMetaVersion = 1

// ItemMeta is the optional sidecar persisted next to an invoice item.
// Every field may be missing; older rows carry no version at all.
type ItemMeta struct {
	Version         int      `json:"version,omitempty"`
	SGST            *float64 `json:"sgst,omitempty"`
	CGST            *float64 `json:"cgst,omitempty"`
	IGST            *float64 `json:"igst,omitempty"`
	SGSTAmount      *float64 `json:"sgst_amount,omitempty"`
	CGSTAmount      *float64 `json:"cgst_amount,omitempty"`
	IGSTAmount      *float64 `json:"igst_amount,omitempty"`
	IsPercentageQty *bool    `json:"is_percentage_qty,omitempty"`
	PercentageValue *float64 `json:"percentage_value,omitempty"`
}

// NewItemMeta captures the rates and computed amounts of a priced item.
func NewItemMeta(item LineItem, c LineItemComputation) ItemMeta {
	isPct := item.IsPercentageQty
	meta := ItemMeta{
		Version:         CurrentMetaVersion,
		SGST:            item.SGST,
		CGST:            item.CGST,
		IGST:            item.IGST,
		SGSTAmount:      floatPtr(c.SGSTAmount),
		CGSTAmount:      floatPtr(c.CGSTAmount),
		IGSTAmount:      floatPtr(c.IGSTAmount),
		IsPercentageQty: &isPct,
		PercentageValue: item.PercentageValue,
	}
	return meta
}

// ParseItemMeta decodes a stored blob field by field. It never fails:
// an absent or unusable blob yields an empty meta and ok=false, and a
// field with the wrong type is skipped while the rest are kept.
func ParseItemMeta(raw []byte) (meta ItemMeta, ok bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ItemMeta{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return ItemMeta{}, false
	}

	if v, found := number(fields["version"]); found {
		meta.Version = int(v)
	}
	meta.SGST = numberPtr(fields["sgst"])
	meta.CGST = numberPtr(fields["cgst"])
	meta.IGST = numberPtr(fields["igst"])
	meta.SGSTAmount = numberPtr(fields["sgst_amount"])
	meta.CGSTAmount = numberPtr(fields["cgst_amount"])
	meta.IGSTAmount = numberPtr(fields["igst_amount"])
	meta.PercentageValue = numberPtr(fields["percentage_value"])
	if b, found := boolean(fields["is_percentage_qty"]); found {
		meta.IsPercentageQty = &b
	}
	return meta, true
}

// Apply fills unset optional fields of item from the meta.
// Fields already present on the item win.
func (m ItemMeta) Apply(item LineItem) LineItem {
	if item.SGST == nil {
		item.SGST = m.SGST
	}
	if item.CGST == nil {
		item.CGST = m.CGST
	}
	if item.IGST == nil {
		item.IGST = m.IGST
	}
	if item.PercentageValue == nil {
		item.PercentageValue = m.PercentageValue
	}
	if !item.IsPercentageQty && m.IsPercentageQty != nil {
		item.IsPercentageQty = *m.IsPercentageQty
	}
	return item
}

// Marshal encodes the meta for storage.
func (m ItemMeta) Marshal() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func numberPtr(raw json.RawMessage) *float64 {
	v, ok := number(raw)
	if !ok {
		return nil
	}
	return &v
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr == nil {
			return parsed, true
		}
	}
	return 0, false
}

func boolean(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, perr := strconv.ParseBool(strings.TrimSpace(s))
		if perr == nil {
			return parsed, true
		}
	}
	return false, false
}

func floatPtr(v float64) *float64 { return &v }
