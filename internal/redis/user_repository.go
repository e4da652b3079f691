package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kindlingnews/kindling/internal/domain"
)

type UserRepo struct {
	rdb *goredis.Client
}

func NewUserRepo(rdb *goredis.Client) *UserRepo {
	return &UserRepo{rdb: rdb}
}

var _ domain.UserRepository = (*UserRepo)(nil)

// Create allocates an id, claims the normalized username with SETNX, and
// persists the record. The SETNX claim is what enforces case-insensitive
// uniqueness; the id counter is rolled forward regardless, so a lost race
// burns an id but never reuses one.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) (int64, error) {
	id, err := r.rdb.Incr(ctx, "user.count").Result()
	if err != nil {
		return 0, fmt.Errorf("allocate user id: %w", err)
	}

	claimed, err := r.rdb.SetNX(ctx, usernameKey(u.Username), id, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("claim username: %w", err)
	}
	if !claimed {
		return 0, domain.ErrUsernameTaken
	}
	u.ID = id

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, userKey(id), map[string]any{
		"id":              id,
		"username":        u.Username,
		"password":        u.PasswordHash,
		"salt":            u.Salt,
		"karma":           u.Karma,
		"karma_incr_time": u.KarmaIncrementedAt,
		"flags":           u.Flags,
		"ctime":           u.CreatedAt,
		"auth":            u.AuthToken,
		"apisecret":       u.APISecret,
	})
	pipe.Set(ctx, authKey(u.AuthToken), id, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("persist user %d: %w", id, err)
	}
	return id, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	fields, err := r.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return parseUser(fields), nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	val, err := r.rdb.Get(ctx, usernameKey(username)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve username: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse username index: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepo) IncrKarma(ctx context.Context, id, delta int64) (int64, error) {
	return r.rdb.HIncrBy(ctx, userKey(id), "karma", delta).Result()
}

func (r *UserRepo) GetKarma(ctx context.Context, id int64) (int64, error) {
	val, err := r.rdb.HGet(ctx, userKey(id), "karma").Result()
	if errors.Is(err, goredis.Nil) {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load karma for user %d: %w", id, err)
	}
	return strconv.ParseInt(val, 10, 64)
}

func (r *UserRepo) SetKarmaIncrementedAt(ctx context.Context, id, ts int64) error {
	return r.rdb.HSet(ctx, userKey(id), "karma_incr_time", ts).Err()
}

func (r *UserRepo) GetIDByAuthToken(ctx context.Context, token string) (int64, bool, error) {
	val, err := r.rdb.Get(ctx, authKey(token)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve auth token: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse auth token index: %w", err)
	}
	return id, true, nil
}

// UpdateAuthToken replaces the user's token, dropping the old index entry so
// stale cookies stop resolving immediately.
func (r *UserRepo) UpdateAuthToken(ctx context.Context, id int64, token string) error {
	old, err := r.rdb.HGet(ctx, userKey(id), "auth").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("load current auth token: %w", err)
	}

	pipe := r.rdb.Pipeline()
	if old != "" {
		pipe.Del(ctx, authKey(old))
	}
	pipe.HSet(ctx, userKey(id), "auth", token)
	pipe.Set(ctx, authKey(token), id, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rotate auth token for user %d: %w", id, err)
	}
	return nil
}

func parseUser(fields map[string]string) *domain.User {
	return &domain.User{
		ID:                 parseInt(fields["id"]),
		Username:           fields["username"],
		PasswordHash:       fields["password"],
		Salt:               fields["salt"],
		Karma:              parseInt(fields["karma"]),
		KarmaIncrementedAt: parseInt(fields["karma_incr_time"]),
		Flags:              fields["flags"],
		CreatedAt:          parseInt(fields["ctime"]),
		AuthToken:          fields["auth"],
		APISecret:          fields["apisecret"],
	}
}

func userKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func usernameKey(username string) string {
	return "username.to.id:" + strings.ToLower(username)
}

func authKey(token string) string {
	return "auth:" + token
}
