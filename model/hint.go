package model

// Hint is a one-time explanation shown the first time a learner meets a
// glossary term in the event log.
type Hint struct {
	Term  string `json:"term"`
	Title string `json:"title"`
	Text  string `json:"text"`
}
