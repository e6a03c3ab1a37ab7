package model

// Target is one tracking request from the target file. ID is matched against
// the class list of a performance section on the page.
type Target struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
}
