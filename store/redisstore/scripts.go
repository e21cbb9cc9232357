package redisstore

import "github.com/redis/go-redis/v9"

const (
	createStatusDuplicate int64 = 0
	createStatusCreated   int64 = 1
)

const (
	rotateStatusNotFound  int64 = 0
	rotateStatusExpired   int64 = 1
	rotateStatusRevoked   int64 = 2
	rotateStatusReused    int64 = 3
	rotateStatusRotated   int64 = 4
	rotateStatusDuplicate int64 = 5
)

// Every script touches only keys passed in KEYS, all tagged with the same
// user, so each call lands on one cluster slot.

// KEYS: record, user set, generation
// ARGV: id, user, hash hex, iat ms, exp ms, ttl ms
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {0}
end
local gen = tonumber(redis.call("GET", KEYS[3]) or "0")
local ttl = tonumber(ARGV[6])
redis.call("HSET", KEYS[1], "id", ARGV[1], "user", ARGV[2], "hash", ARGV[3], "iat", ARGV[4], "exp", ARGV[5], "revoked", "", "replaced", "", "gen", gen)
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("SADD", KEYS[2], ARGV[3])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return {1, gen}
`

var createLua = redis.NewScript(createScript)

// KEYS: old record, new record, user set, generation
// ARGV: new id, user, new hash hex, iat ms, exp ms, ttl ms, now ms
const rotateScript = `
local ttl = tonumber(ARGV[6])
local now_ms = tonumber(ARGV[7])

local function reply(code)
  local f = redis.call("HMGET", KEYS[1], "id", "user", "hash", "iat", "exp", "revoked", "replaced", "gen")
  return {code, f[1], f[2], f[3], f[4], f[5], f[6], f[7], f[8]}
end

local rec = redis.call("HMGET", KEYS[1], "user", "exp", "revoked", "replaced", "gen")
if not rec[1] or rec[1] ~= ARGV[2] then
  return {0}
end

local current = tonumber(redis.call("GET", KEYS[4]) or "0")

if rec[4] and rec[4] ~= "" then
  return reply(3)
end
if (rec[3] and rec[3] ~= "") or tonumber(rec[5] or "0") < current then
  return reply(2)
end
if tonumber(rec[2]) <= now_ms then
  return reply(1)
end

if redis.call("EXISTS", KEYS[2]) == 1 then
  return {5}
end

redis.call("HSET", KEYS[2], "id", ARGV[1], "user", ARGV[2], "hash", ARGV[3], "iat", ARGV[4], "exp", ARGV[5], "revoked", "", "replaced", "", "gen", current)
redis.call("PEXPIRE", KEYS[2], ttl)
redis.call("SADD", KEYS[3], ARGV[3])
if redis.call("PTTL", KEYS[3]) < ttl then
  redis.call("PEXPIRE", KEYS[3], ttl)
end

redis.call("HSET", KEYS[1], "revoked", ARGV[7], "replaced", ARGV[1])

return reply(4)
`

var rotateLua = redis.NewScript(rotateScript)

// KEYS: user set, generation, record...
// ARGV: now ms, hash hex... (one per record key, same order)
const revokeAllScript = `
redis.call("INCR", KEYS[2])
local revoked = 0
for i = 3, #KEYS do
  local r = redis.call("HGET", KEYS[i], "revoked")
  if not r then
    redis.call("SREM", KEYS[1], ARGV[i - 1])
  elseif r == "" then
    redis.call("HSET", KEYS[i], "revoked", ARGV[1])
    revoked = revoked + 1
  end
end
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// KEYS: record
// ARGV: now ms
const revokeScript = `
local r = redis.call("HGET", KEYS[1], "revoked")
if not r then
  return 0
end
if r == "" then
  redis.call("HSET", KEYS[1], "revoked", ARGV[1])
end
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// KEYS: old record, new record
// ARGV: new id
const linkScript = `
if redis.call("EXISTS", KEYS[1]) == 0 or redis.call("EXISTS", KEYS[2]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "replaced", ARGV[1])
return 1
`

var linkLua = redis.NewScript(linkScript)
