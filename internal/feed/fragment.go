package feed

import (
	"encoding/xml"
	"fmt"
)

// ContentType identifies the notification payload as a feed document.
const ContentType = "application/atom+xml"

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Xmlns   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string   `xml:"title"`
	Link      atomLink `xml:"link"`
	Published string   `xml:"published,omitempty"`
	Content   string   `xml:"content,omitempty"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

// Fragment serializes the given entries as an Atom document carrying
// only the new content, for delivery to subscribers.
func Fragment(title string, entries []Entry) ([]byte, error) {
	doc := atomFeed{
		Xmlns: "http://www.w3.org/2005/Atom",
		Title: title,
	}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, atomEntry{
			Title:     e.Title,
			Link:      atomLink{Href: e.Link},
			Published: e.Published,
			Content:   e.Content,
		})
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal fragment: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
