package snapshot

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"posclient/internal/domain/pagination"
)

type rawItem = json.RawMessage

// fieldKey keys an item by the first non-empty field; items without any fall back
// to their compacted JSON.
func fieldKey(fields ...string) pagination.KeyFunc[rawItem] {
	return func(raw rawItem) string {
		m := decodeObject(raw)
		for _, f := range fields {
			if v := scalar(m[f]); v != "" {
				return v
			}
		}
		return compact(raw)
	}
}

// eventKey keys alerts and activity rows by name, then by a composite of their
// descriptive fields.
func eventKey(raw rawItem) string {
	m := decodeObject(raw)
	if v := scalar(m["name"]); v != "" {
		return v
	}
	parts := []string{
		scalar(m["type"]),
		scalar(m["reference"]),
		scalar(m["timestamp"]),
		scalar(m["message"]),
	}
	if strings.Join(parts, "") == "" {
		return compact(raw)
	}
	return strings.Join(parts, "|")
}

var sectionKeys = map[Section]pagination.KeyFunc[rawItem]{
	SectionInventory: fieldKey("item_code", "name"),
	SectionCustomers: fieldKey("name"),
	SectionInvoices:  fieldKey("name"),
	SectionAlerts:    eventKey,
	SectionActivity:  eventKey,
}

var paymentEntryKey = fieldKey("name")

// nameKey is used for catalog rows.
var nameKey = fieldKey("name")

func decodeObject(raw rawItem) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

func compact(raw rawItem) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func isNullOrEmpty(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
