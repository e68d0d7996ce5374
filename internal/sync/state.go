package sync

// State is a step of a sync pass.
type State string

const (
	StateIdle             State = "idle"
	StateCredentialLoaded State = "credential_loaded"
	StateSyncing          State = "syncing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

func (s State) String() string { return string(s) }
