package redis

import "github.com/redis/go-redis/v9"

// releaseScript deletes KEYS[1] when it still holds ARGV[1]. A lock that
// expired and was re-acquired by another pass is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrScript increments KEYS[1] and sets a PEXPIRE of ARGV[1] ms when the
// counter was just created.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)
