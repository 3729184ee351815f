package site

import (
	"strings"
	"time"
)

// Post is the one persisted entity: a published craft story. Posts are
// created by the publish flow, read by the feed, and never mutated or
// deleted afterwards.
type Post struct {
	ID          string    `json:"id"`
	PublisherID string    `json:"publisherId"`
	Name        string    `json:"name"`
	Age         string    `json:"age"`
	Place       string    `json:"place"`
	ProductName string    `json:"productName"`
	CraftType   string    `json:"craftType"`
	Materials   string    `json:"materials"`
	Inspiration string    `json:"inspiration"`
	Audience    string    `json:"audience"`
	Language    string    `json:"language"`
	Tone        string    `json:"tone"`
	Story       string    `json:"story"`
	Tags        []string  `json:"tags"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SplitTags turns a comma-joined tags field into trimmed, non-empty
// entries. Splitting the output of JoinTags yields the same entries.
func SplitTags(field string) []string {
	parts := strings.Split(field, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// JoinTags renders tags for the editable tags field.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func postFromForm(values map[string]string) Post {
	return Post{
		Name:        values["name"],
		Age:         values["age"],
		Place:       values["place"],
		ProductName: values["productName"],
		CraftType:   values["craftType"],
		Materials:   values["materials"],
		Inspiration: values["inspiration"],
		Audience:    values["audience"],
		Language:    values["language"],
		Tone:        values["tone"],
	}
}
