package fill

// State is how far a fill got
type State string

const (
	StateInit          State = "init"
	StateCanonicalized State = "canonicalized"
	StateFunded        State = "funded"
	StateApproved      State = "approved"
	StateSubmitted     State = "submitted"
	StateConfirmed     State = "confirmed"
	StateRejected      State = "rejected"
)

