// Package model contains domain models shared by the service, QA and HTTP layers.
package model

// Answer is the reply to a question: the synthesized text and the file names
// of the chunks it was grounded on, in retrieval rank order.
type Answer struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// Citation describes one retrieved chunk in more detail than Answer.Sources.
type Citation struct {
	Source     string  `json:"source"`
	DocumentID string  `json:"document_id,omitempty"`
	Page       int     `json:"page,omitempty"`
	Score      float32 `json:"score"`
	Snippet    string  `json:"snippet"`
}
