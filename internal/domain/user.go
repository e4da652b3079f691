package domain

import "context"

// User flags, stored as a short string of single-letter markers as the
// record's "flags" field.
const FlagAdmin = "a"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Salt         string
	Karma        int64
	// KarmaIncrementedAt is the unix second of the last passive karma credit.
	KarmaIncrementedAt int64
	Flags              string
	CreatedAt          int64
	AuthToken          string
	APISecret          string
}

func (u *User) IsAdmin() bool {
	for _, f := range u.Flags {
		if string(f) == FlagAdmin {
			return true
		}
	}
	return false
}

// UserRepository is the storage port for user records, the unique username
// index, and the auth-token index. Usernames are unique case-insensitively;
// Create must fail with ErrUsernameTaken when the normalized name is taken.
type UserRepository interface {
	Create(ctx context.Context, u *User) (int64, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// IncrKarma atomically adds delta (may be negative) and returns the new
	// balance. Callers gate debits; this primitive does not enforce a floor.
	IncrKarma(ctx context.Context, id, delta int64) (int64, error)
	GetKarma(ctx context.Context, id int64) (int64, error)
	SetKarmaIncrementedAt(ctx context.Context, id, ts int64) error
	GetIDByAuthToken(ctx context.Context, token string) (int64, bool, error)
	UpdateAuthToken(ctx context.Context, id int64, token string) error
}
