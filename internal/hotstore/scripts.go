package hotstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// placeBidLua implements primitive P1. KEYS: [auctionKey, bidsKey,
// activeIndexKey]. ARGV: [amountCents, bidderId, serverTimeMs,
// incrementHintCents, auctionId].
//
// Preconditions are evaluated in the exact order spec.md §4.1 mandates:
// NOT_FOUND, INVALID_AMOUNT, NOT_ACTIVE, ENDED, SELLER_CANNOT_BID, TOO_LOW.
const placeBidLua = `
local auctionKey = KEYS[1]
local bidsKey = KEYS[2]
local activeIndexKey = KEYS[3]

local amount = tonumber(ARGV[1])
local bidderId = ARGV[2]
local now = tonumber(ARGV[3])
local incrementHint = tonumber(ARGV[4])
local auctionId = ARGV[5]

if redis.call('EXISTS', auctionKey) == 0 then
  return {'NOT_FOUND'}
end

if amount == nil or amount <= 0 then
  return {'INVALID_AMOUNT'}
end

local status = redis.call('HGET', auctionKey, 'status')
if status ~= 'active' then
  return {'NOT_ACTIVE'}
end

local endTime = tonumber(redis.call('HGET', auctionKey, 'endTime'))
if now >= endTime then
  return {'ENDED'}
end

local sellerId = redis.call('HGET', auctionKey, 'sellerId')
if bidderId == sellerId then
  return {'SELLER_CANNOT_BID'}
end

local currentBid = tonumber(redis.call('HGET', auctionKey, 'currentBid'))
local highestBidderId = redis.call('HGET', auctionKey, 'highestBidderId')
local storedIncrement = tonumber(redis.call('HGET', auctionKey, 'bidIncrement'))
local startingPrice = tonumber(redis.call('HGET', auctionKey, 'startingPrice'))
local totalBids = tonumber(redis.call('HGET', auctionKey, 'totalBids'))

local isFirstBid = (highestBidderId == nil or highestBidderId == false or highestBidderId == '')
local minimumBid
if isFirstBid then
  minimumBid = startingPrice
else
  local effectiveIncrement = storedIncrement
  if incrementHint ~= nil and incrementHint > 0 then
    effectiveIncrement = incrementHint
  end
  minimumBid = currentBid + effectiveIncrement
end

if amount < minimumBid then
  local firstFlag = 0
  if isFirstBid then firstFlag = 1 end
  return {'TOO_LOW', currentBid, minimumBid, firstFlag}
end

local previousBid = currentBid
local previousBidderId = highestBidderId
local newTotalBids = totalBids + 1

redis.call('HSET', auctionKey, 'currentBid', amount, 'highestBidderId', bidderId, 'totalBids', newTotalBids)
redis.call('ZADD', bidsKey, amount, bidderId .. ':' .. tostring(now) .. ':' .. tostring(amount))

return {'OK', previousBid, previousBidderId or '', newTotalBids}
`

// extendLua implements primitive P2. KEYS: [auctionKey, activeIndexKey,
// deadlineKey]. ARGV: [nowMs, thresholdMs, durationMs, auctionId].
const extendLua = `
local auctionKey = KEYS[1]
local activeIndexKey = KEYS[2]
local deadlineKey = KEYS[3]

local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])
local auctionId = ARGV[4]

if redis.call('EXISTS', auctionKey) == 0 then
  return {'NOT_FOUND'}
end

local status = redis.call('HGET', auctionKey, 'status')
if status ~= 'active' then
  return {'NOT_ACTIVE'}
end

local endTime = tonumber(redis.call('HGET', auctionKey, 'endTime'))
local remaining = endTime - now

if remaining > 0 and remaining <= threshold then
  local newEndTime = endTime + duration
  redis.call('HSET', auctionKey, 'endTime', newEndTime)
  redis.call('ZADD', activeIndexKey, newEndTime, auctionId)
  redis.call('SET', deadlineKey, '1', 'PXAT', newEndTime)
  return {'extended', endTime, newEndTime}
end

return {'not-extended', endTime, remaining}
`

// finalizeLua implements primitive P3. KEYS: [auctionKey, activeIndexKey,
// deadlineKey]. ARGV: [nowMs, auctionId].
const finalizeLua = `
local auctionKey = KEYS[1]
local activeIndexKey = KEYS[2]
local deadlineKey = KEYS[3]

local now = tonumber(ARGV[1])
local auctionId = ARGV[2]

if redis.call('EXISTS', auctionKey) == 0 then
  return {'NOT_FOUND'}
end

local status = redis.call('HGET', auctionKey, 'status')
if status == 'ended' then
  return {'ALREADY_FINAL'}
end

local endTime = tonumber(redis.call('HGET', auctionKey, 'endTime'))
if now < endTime then
  return {'NOT_ENDED'}
end

local winnerId = redis.call('HGET', auctionKey, 'highestBidderId')
local winningBid = tonumber(redis.call('HGET', auctionKey, 'currentBid'))
local totalBids = tonumber(redis.call('HGET', auctionKey, 'totalBids'))

redis.call('HSET', auctionKey, 'status', 'ended')
redis.call('ZREM', activeIndexKey, auctionId)
redis.call('DEL', deadlineKey)

return {'OK', winnerId or '', winningBid, totalBids, endTime}
`

// installLua implements lazy hydration's put-if-absent guarantee: at most
// one concurrent installer writes the hash and joins the active index.
// KEYS: [auctionKey, activeIndexKey, deadlineKey]. ARGV: [ttlSeconds,
// auctionId, status, endTimeMs, field1, value1, field2, value2, ...].
const installLua = `
local auctionKey = KEYS[1]
local activeIndexKey = KEYS[2]
local deadlineKey = KEYS[3]

if redis.call('EXISTS', auctionKey) == 1 then
  return 0
end

local ttl = tonumber(ARGV[1])
local auctionId = ARGV[2]
local status = ARGV[3]
local endTime = tonumber(ARGV[4])

for i = 5, #ARGV, 2 do
  redis.call('HSET', auctionKey, ARGV[i], ARGV[i+1])
end
redis.call('EXPIRE', auctionKey, ttl)

if status == 'active' then
  redis.call('ZADD', activeIndexKey, endTime, auctionId)
  redis.call('SET', deadlineKey, '1', 'PXAT', endTime)
end

return 1
`

// cancelLua implements the administrative cancel seam (spec.md §9 Open
// Question). It is never invoked by bid traffic. KEYS: [auctionKey,
// activeIndexKey, deadlineKey]. ARGV: [auctionId].
const cancelLua = `
local auctionKey = KEYS[1]
local activeIndexKey = KEYS[2]
local deadlineKey = KEYS[3]
local auctionId = ARGV[1]

if redis.call('EXISTS', auctionKey) == 0 then
  return {'NOT_FOUND'}
end

local status = redis.call('HGET', auctionKey, 'status')
if status == 'ended' then
  return {'ALREADY_FINAL'}
end

redis.call('HSET', auctionKey, 'status', 'cancelled')
redis.call('ZREM', activeIndexKey, auctionId)
redis.call('DEL', deadlineKey)

return {'OK'}
`

func installLuaRun(ctx context.Context, rdb *redis.Client, auctionKey, activeIndexKey, deadlineKey, auctionID string, fields map[string]interface{}, ttl time.Duration) (bool, error) {
	status := fmt.Sprint(fields["status"])
	endTime := fmt.Sprint(fields["endTime"])
	argv := []interface{}{int64(ttl / time.Second), auctionID, status, endTime}
	for k, v := range fields {
		argv = append(argv, k, stringifyFieldValue(v))
	}
	res, err := redis.NewScript(installLua).Run(ctx, rdb, []string{auctionKey, activeIndexKey, deadlineKey}, argv...).Result()
	if err != nil {
		return false, fmt.Errorf("hotstore: install: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func stringifyFieldValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
