package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/kopimap/kopimap-api/internal/db"
)

// slideWindowScript keeps one sorted set per client, scored by event time in
// milliseconds. Events with now - ts >= window are dropped, then the new
// event is recorded only when the window still has room.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] capacity, ARGV[4] member
var slideWindowScript = rueidis.NewLuaScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < capacity then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
if count > 0 then
  redis.call('PEXPIRE', KEYS[1], window)
end

local oldest = -1
local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// SlideWindow runs one atomic sliding-window admission check.
func (s *Store) SlideWindow(ctx context.Context, req db.WindowRequest) (db.WindowResult, error) {
	if req.Key == "" || req.Member == "" {
		return db.WindowResult{}, fmt.Errorf("window key and member are required")
	}
	if req.Window <= 0 || req.Capacity <= 0 {
		return db.WindowResult{}, fmt.Errorf("window and capacity must be positive")
	}

	args := []string{
		strconv.FormatInt(req.Now.UnixMilli(), 10),
		strconv.FormatInt(req.Window.Milliseconds(), 10),
		strconv.Itoa(req.Capacity),
		req.Member,
	}
	vals, err := slideWindowScript.Exec(ctx, s.client, []string{req.Key}, args).ToArray()
	if err != nil {
		return db.WindowResult{}, &db.Error{Op: db.OpEval, Err: err}
	}
	if len(vals) != 3 {
		return db.WindowResult{}, &db.Error{
			Op:  db.OpDecode,
			Err: fmt.Errorf("window script returned %d values, want 3", len(vals)),
		}
	}

	nums := make([]int64, len(vals))
	for i, v := range vals {
		n, err := v.AsInt64()
		if err != nil {
			return db.WindowResult{}, &db.Error{Op: db.OpDecode, Err: err}
		}
		nums[i] = n
	}

	res := db.WindowResult{Allowed: nums[0] == 1, Count: int(nums[1])}
	if nums[2] >= 0 {
		res.Oldest = time.UnixMilli(nums[2])
	}
	return res, nil
}
