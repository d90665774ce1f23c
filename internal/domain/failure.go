package domain

// Failure represents a failed or errored phase of a case
type Failure struct {
	CaseID   string   `json:"case_id"`
	Name     string   `json:"name"`
	NodePath string   `json:"node_path"`
	Group    string   `json:"group,omitempty"`
	Phase    Phase    `json:"phase"`
	Status   Status   `json:"status"`
	Message  string   `json:"message"`
	Errors   []string `json:"errors,omitempty"`
	Resolved bool     `json:"resolved,omitempty"` // Track if the failure is marked as resolved
}
