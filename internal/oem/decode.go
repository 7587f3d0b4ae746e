package oem

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Decode reads an OEM XML document. Elements absent from a state vector stay
// nil; comments are trimmed.
func Decode(r io.Reader) (*Document, error) {
	var root struct {
		XMLName xml.Name `xml:"ndm"`
		Document
	}
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding OEM XML: %w", err)
	}

	doc := root.Document
	for i, c := range doc.Comments {
		doc.Comments[i] = strings.TrimSpace(c)
	}
	return &doc, nil
}
