package verification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "2fa:"

// consumeScript performs the check-and-mark in one round trip so a token can
// never be spent twice by racing requests.
var consumeScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
  return 0
end
local token = {}
for i = 1, #fields, 2 do
  token[fields[i]] = fields[i+1]
end
if token['consumed'] == '1' then
  return 0
end
if token['ctx_type'] ~= ARGV[1] or token['ctx_amount'] ~= ARGV[2] or token['ctx_target'] ~= ARGV[3] then
  return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 1
`)

// RedisStore keeps tokens in Redis hashes under 2fa:{subject}:{token} with the
// TTL enforcing expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a token store backed by Redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func tokenKey(subjectID, tokenID string) string {
	return tokenKeyPrefix + subjectID + ":" + tokenID
}

// Put stores a token with the provided TTL.
func (s *RedisStore) Put(ctx context.Context, token Token, ttl time.Duration) error {
	key := tokenKey(token.SubjectID, token.ID)
	fields := map[string]any{
		"subject_id": token.SubjectID,
		"ctx_type":   token.Context.Type,
		"ctx_amount": strconv.FormatInt(token.Context.Amount, 10),
		"ctx_target": token.Context.TargetID,
		"issued_at":  token.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"consumed":   "0",
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.PExpire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Get returns the token and whether it exists.
func (s *RedisStore) Get(ctx context.Context, subjectID, tokenID string) (Token, bool, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(subjectID, tokenID)).Result()
	if err != nil {
		return Token{}, false, err
	}
	if len(fields) == 0 {
		return Token{}, false, nil
	}
	amount, _ := strconv.ParseInt(fields["ctx_amount"], 10, 64)
	issuedAt, _ := time.Parse(time.RFC3339Nano, fields["issued_at"])
	expiresAt, _ := time.Parse(time.RFC3339Nano, fields["expires_at"])
	return Token{
		ID:        tokenID,
		SubjectID: fields["subject_id"],
		Context:   Context{Type: fields["ctx_type"], Amount: amount, TargetID: fields["ctx_target"]},
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Consumed:  fields["consumed"] == "1",
	}, true, nil
}

// ConsumeIfValid runs the atomic check-and-mark script.
func (s *RedisStore) ConsumeIfValid(ctx context.Context, subjectID, tokenID string, expected Context) (bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{tokenKey(subjectID, tokenID)},
		expected.Type, strconv.FormatInt(expected.Amount, 10), expected.TargetID).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Consume marks the token consumed; a missing key means the token expired and
// there is nothing left to protect.
func (s *RedisStore) Consume(ctx context.Context, subjectID, tokenID string) error {
	key := tokenKey(subjectID, tokenID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}
	return s.client.HSet(ctx, key, "consumed", "1").Err()
}
