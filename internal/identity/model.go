package identity

import "time"

// User represents a registered wallet owner.
type User struct {
	ID            string
	Phone         string
	PINHash       []byte
	StepUpEnabled bool
	CreatedAt     time.Time
}
