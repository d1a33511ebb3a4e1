// Package content normalizes submission bodies and attachment lists into the
// form persisted by the stores.
package content

import (
	"encoding/json"
	"strings"
)

// Delimiter separated attachment URLs in rows written before lists were
// stored as JSON arrays. Expand still reads that form.
const Delimiter = ","

// Record is a submission ready for persistence.
type Record struct {
	Text        string
	Attachments string
}

// URLs returns the attachment list encoded in the record.
func (r Record) URLs() []string {
	return Expand(r.Attachments)
}

// Assemble trims the body and folds urls into a single serialized field.
// Blank entries are dropped; order and duplicates are kept.
func Assemble(text string, urls []string) Record {
	return Record{
		Text:        strings.TrimSpace(text),
		Attachments: Serialize(urls),
	}
}

// Serialize encodes urls as a JSON array. An empty list is "".
func Serialize(urls []string) string {
	urls = Normalize(urls)
	if len(urls) == 0 {
		return ""
	}
	raw, err := json.Marshal(urls)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Expand is the inverse of Serialize. It never returns nil.
func Expand(serialized string) []string {
	serialized = strings.TrimSpace(serialized)
	if serialized == "" {
		return []string{}
	}
	if strings.HasPrefix(serialized, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(serialized), &urls); err == nil {
			return Normalize(urls)
		}
	}
	return Normalize(strings.Split(serialized, Delimiter))
}

// Normalize trims every url and drops the empty ones.
func Normalize(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
