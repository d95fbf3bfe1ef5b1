package queue

import "github.com/redis/go-redis/v9"

// Each script moves a job between structures atomically.

// KEYS: job, waiting, delayed. ARGV: id, readyAtMs (0 = now), field/value pairs...
var enqueueScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 3))
if tonumber(ARGV[2]) > 0 then
  redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
else
  redis.call("LPUSH", KEYS[2], ARGV[1])
end
return 1
`)

// KEYS: job, waiting, delayed. ARGV: id.
var cancelScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if state == "waiting" then
  redis.call("LREM", KEYS[2], 0, ARGV[1])
elseif state == "delayed" then
  redis.call("ZREM", KEYS[3], ARGV[1])
else
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// KEYS: delayed, waiting. ARGV: nowMs, job key prefix, batch size.
var promoteScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call("ZREM", KEYS[1], id)
  redis.call("HSET", ARGV[2] .. id, "state", "waiting")
  redis.call("LPUSH", KEYS[2], id)
end
return #ids
`)

// KEYS: waiting, active. ARGV: job key prefix, nowMs.
var dequeueScript = redis.NewScript(`
while true do
  local id = redis.call("RPOPLPUSH", KEYS[1], KEYS[2])
  if not id then
    return false
  end
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "state", "active", "processed_at", ARGV[2])
    return id
  end
  redis.call("LREM", KEYS[2], 0, id)
end
`)

// KEYS: job, active, completed. ARGV: id, nowMs, result.
var completeScript = redis.NewScript(`
redis.call("LREM", KEYS[2], 0, ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
redis.call("HINCRBY", KEYS[1], "attempts_made", 1)
redis.call("HSET", KEYS[1], "state", "completed", "finished_at", ARGV[2], "result", ARGV[3])
return 1
`)

// KEYS: job, active, delayed, failed. ARGV: id, nowMs, reason, retryAtMs (0 = final).
var failScript = redis.NewScript(`
redis.call("LREM", KEYS[2], 0, ARGV[1])
redis.call("HINCRBY", KEYS[1], "attempts_made", 1)
redis.call("HSET", KEYS[1], "failed_reason", ARGV[3])
if tonumber(ARGV[4]) > 0 then
  redis.call("HSET", KEYS[1], "state", "delayed")
  redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
  return 1
end
redis.call("HSET", KEYS[1], "state", "failed", "finished_at", ARGV[2])
redis.call("ZADD", KEYS[4], ARGV[2], ARGV[1])
return 0
`)

// KEYS: job, active, waiting. ARGV: id.
var releaseScript = redis.NewScript(`
if redis.call("LREM", KEYS[2], 0, ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "state", "waiting")
redis.call("HDEL", KEYS[1], "processed_at")
redis.call("RPUSH", KEYS[3], ARGV[1])
return 1
`)

// KEYS: active, waiting. ARGV: job key prefix, cutoffMs.
var requeueStalledScript = redis.NewScript(`
local moved = 0
for _, id in ipairs(redis.call("LRANGE", KEYS[1], 0, -1)) do
  local key = ARGV[1] .. id
  if redis.call("EXISTS", key) == 0 then
    redis.call("LREM", KEYS[1], 0, id)
  else
    local started = tonumber(redis.call("HGET", key, "processed_at") or "0")
    if started <= tonumber(ARGV[2]) then
      redis.call("LREM", KEYS[1], 0, id)
      redis.call("HSET", key, "state", "waiting")
      redis.call("HDEL", key, "processed_at")
      redis.call("RPUSH", KEYS[2], id)
      moved = moved + 1
    end
  end
end
return moved
`)
