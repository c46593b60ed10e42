package job_message

// RunIdentifier is embedded in every job message so the router can always
// attribute a failure to a run.
type RunIdentifier struct {
	RunID string `json:"run_id"`
}
