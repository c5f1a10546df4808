package redis

import goredis "github.com/redis/go-redis/v9"

// releaseLua defines release(), which returns a running task to its queue.
// It is shared by releaseScript and reapScript.
const releaseLua = `
local function release(tkey, tid, now, qprefix, running)
	local q = redis.call('HGET', tkey, 'queue')
	local member = redis.call('HGET', tkey, 'member')
	local prio = tonumber(redis.call('HGET', tkey, 'priority'))
	redis.call('HSET', tkey, 'state', 'pending', 'updated_at', now)
	redis.call('HDEL', tkey, 'worker_id', 'started_at', 'heartbeat_at')
	redis.call('ZADD', qprefix .. q, -prio, member)
	redis.call('ZREM', running, tid)
end
`

// enqueueScript stores a new task and indexes it.
//
//	KEYS: task, task_ids, queues, queue
//	ARGV: id, queue name, score, member, field/value pairs...
var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local fields = {}
for i = 5, #ARGV do
	fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[4])
return 1
`)

// fetchScript claims up to limit pending tasks across the given queues in
// fetch order. Members sort by score (negated priority) and then by the
// member text, which is the zero-padded run time followed by the ID.
//
//	KEYS: running, queue...
//	ARGV: limit (<= 0 for all), worker id, now nanos, now millis, task prefix
var fetchScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local stop = -1
if limit > 0 then
	stop = limit - 1
end
local cands = {}
for i = 2, #KEYS do
	local items = redis.call('ZRANGE', KEYS[i], 0, stop, 'WITHSCORES')
	for j = 1, #items, 2 do
		cands[#cands + 1] = {member = items[j], score = tonumber(items[j + 1]), key = KEYS[i]}
	end
end
table.sort(cands, function(a, b)
	if a.score ~= b.score then
		return a.score < b.score
	end
	return a.member < b.member
end)
local out = {}
for _, c in ipairs(cands) do
	if limit > 0 and #out >= limit then
		break
	end
	local tid = string.sub(c.member, 22)
	local tkey = ARGV[5] .. tid
	redis.call('ZREM', c.key, c.member)
	redis.call('HSET', tkey, 'state', 'running', 'worker_id', ARGV[2],
		'started_at', ARGV[3], 'heartbeat_at', ARGV[3], 'updated_at', ARGV[3])
	redis.call('ZADD', KEYS[1], ARGV[4], tid)
	out[#out + 1] = tid
end
return out
`)

// transitionScript updates a running task. It returns 0 when the task is
// missing and -1 when it is not running.
//
//	KEYS: task, running
//	ARGV: mode ("finish" or "heartbeat"), id, millis, field/value pairs...
var transitionScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('HGET', KEYS[1], 'state') ~= 'running' then
	return -1
end
local fields = {}
for i = 4, #ARGV do
	fields[#fields + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(fields))
if ARGV[1] == 'heartbeat' then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[2])
else
	redis.call('ZREM', KEYS[2], ARGV[2])
end
return 1
`)

// releaseScript returns one running task to pending.
//
//	KEYS: task, running
//	ARGV: id, now nanos, queue prefix
var releaseScript = goredis.NewScript(releaseLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('HGET', KEYS[1], 'state') ~= 'running' then
	return -1
end
release(KEYS[1], ARGV[1], ARGV[2], ARGV[3], KEYS[2])
return 1
`)

// reapScript returns running tasks whose heartbeat is older than the
// cutoff to pending and reports how many it released.
//
//	KEYS: running
//	ARGV: cutoff millis, now nanos, task prefix, queue prefix
var reapScript = goredis.NewScript(releaseLua + `
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local n = 0
for _, tid in ipairs(ids) do
	local tkey = ARGV[3] .. tid
	if redis.call('HGET', tkey, 'state') == 'running' then
		release(tkey, tid, ARGV[2], ARGV[4], KEYS[1])
		n = n + 1
	else
		redis.call('ZREM', KEYS[1], tid)
	end
end
return n
`)
