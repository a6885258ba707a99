package verification

import (
	"errors"
	"time"
)

// ErrStepUpNotEnabled indicates the subject has no step-up credentials and so
// cannot be issued a money-moving token.
var ErrStepUpNotEnabled = errors.New("step-up verification not enabled")

// Context binds a token to exactly one transaction. A token issued for one
// context never validates against another.
type Context struct {
	Type     string
	Amount   int64
	TargetID string
}

// Token is a short-lived, single-use step-up credential.
type Token struct {
	ID        string
	SubjectID string
	Context   Context
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}
