package retrieval

import (
	"bytes"
	"encoding/json"
)

// Document is one search hit returned by the literature retrieval service.
type Document struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

// UnmarshalJSON accepts both the structured form and a bare string, which is
// treated as an abstract without a title.
func (d *Document) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*d = Document{Abstract: text}
		return nil
	}

	type plain Document
	var doc plain
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return err
	}
	*d = Document(doc)
	return nil
}

// Render formats the document the way it is embedded in the system prompt.
func (d Document) Render() string {
	if d.Title == "" {
		return d.Abstract
	}
	return d.Title + "\n" + d.Abstract
}
