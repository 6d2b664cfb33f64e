package presence

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] user connection set, KEYS[2] online user set; ARGV[1] conn id, ARGV[2] user id.
var addScript = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
if added == 1 and redis.call('SCARD', KEYS[1]) == 1 then
  redis.call('SADD', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

var removeScript = redis.NewScript(`
local removed = redis.call('SREM', KEYS[1], ARGV[1])
if removed == 1 and redis.call('SCARD', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// RedisStore keeps presence in redis sets so several processes can share it.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a RedisStore. Keys are namespaced by prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) userKey(userID int) string {
	return s.prefix + "user:" + strconv.Itoa(userID)
}

func (s *RedisStore) onlineKey() string {
	return s.prefix + "online"
}

func (s *RedisStore) Add(ctx context.Context, userID int, connID string) (bool, error) {
	n, err := addScript.Run(ctx, s.rdb, []string{s.userKey(userID), s.onlineKey()}, connID, userID).Int()
	if err != nil {
		return false, errors.Wrap(err, "presence add")
	}
	return n == 1, nil
}

func (s *RedisStore) Remove(ctx context.Context, userID int, connID string) (bool, error) {
	n, err := removeScript.Run(ctx, s.rdb, []string{s.userKey(userID), s.onlineKey()}, connID, userID).Int()
	if err != nil {
		return false, errors.Wrap(err, "presence remove")
	}
	return n == 1, nil
}

func (s *RedisStore) IsOnline(ctx context.Context, userID int) (bool, error) {
	n, err := s.rdb.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "presence scard")
	}
	return n > 0, nil
}

func (s *RedisStore) OnlineUsers(ctx context.Context) ([]int, error) {
	members, err := s.rdb.SMembers(ctx, s.onlineKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "presence online members")
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *RedisStore) Connections(ctx context.Context, userID int) ([]string, error) {
	conns, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "presence connections")
	}
	sort.Strings(conns)
	return conns, nil
}
