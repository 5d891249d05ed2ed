package auth

// MaxFailedLoginAttempts is the default number of consecutive failures
// that locks an account.
const MaxFailedLoginAttempts = 5

// LockoutState is the brute force counter of an account.
type LockoutState struct {
	FailedAttempts int
	Locked         bool
}

// LockoutPolicy holds the pure lockout transitions. Time never unlocks an
// account, only Reset or a successful login on an account that was allowed
// to try does.
type LockoutPolicy struct {
	MaxAttempts int
}

// DefaultLockoutPolicy locks after MaxFailedLoginAttempts failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: MaxFailedLoginAttempts}
}

func (p LockoutPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return MaxFailedLoginAttempts
	}
	return p.MaxAttempts
}

// RegisterFailure counts a failed attempt. justLocked is true only for the
// transition that moved the account from unlocked to locked.
func (p LockoutPolicy) RegisterFailure(s LockoutState) (next LockoutState, justLocked bool) {
	next = LockoutState{
		FailedAttempts: s.FailedAttempts + 1,
		Locked:         s.Locked,
	}
	if next.FailedAttempts < 1 {
		next.FailedAttempts = 1
	}
	if !next.Locked && next.FailedAttempts >= p.maxAttempts() {
		next.Locked = true
		justLocked = true
	}
	return next, justLocked
}

// RegisterSuccess clears the counter and the lock.
func (p LockoutPolicy) RegisterSuccess(LockoutState) LockoutState {
	return LockoutState{}
}

// Reset is the administrative unlock.
func (p LockoutPolicy) Reset(LockoutState) LockoutState {
	return LockoutState{}
}
