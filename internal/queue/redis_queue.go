package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Lease bookkeeping lives next to the pending list:
//
//	<name>               pending items, RPUSH at tail, popped from head
//	<name>:leased        ZSET lease token -> deadline (unix ms, server clock)
//	<name>:inflight      HASH lease token -> raw item
//	<name>:redeliveries  HASH item id -> expired lease count
//	<name>:dead          items that exceeded MaxDeliveries
var dequeueScript = redis.NewScript(`
local items = redis.call('LPOP', KEYS[1], ARGV[1])
if not items then return {} end
local t = redis.call('TIME')
local deadline = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000) + tonumber(ARGV[2])
local out = {}
for i, raw in ipairs(items) do
  local token = ARGV[3] .. ':' .. i
  redis.call('ZADD', KEYS[2], deadline, token)
  redis.call('HSET', KEYS[3], token, raw)
  out[#out + 1] = token
  out[#out + 1] = raw
end
return out
`)

var ackScript = redis.NewScript(`
local acked = 0
for i = 1, #ARGV, 2 do
  acked = acked + redis.call('ZREM', KEYS[1], ARGV[i])
  redis.call('HDEL', KEYS[2], ARGV[i])
  if ARGV[i + 1] ~= '' then redis.call('HDEL', KEYS[3], ARGV[i + 1]) end
end
return acked
`)

var reclaimScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now, 'LIMIT', 0, tonumber(ARGV[2]))
local requeued, dead = 0, 0
for i = #expired, 1, -1 do
  local token = expired[i]
  if redis.call('ZREM', KEYS[2], token) == 1 then
    local raw = redis.call('HGET', KEYS[3], token)
    redis.call('HDEL', KEYS[3], token)
    if raw then
      local id = token
      local ok, item = pcall(cjson.decode, raw)
      if ok and type(item) == 'table' and type(item.id) == 'string' then id = item.id end
      local n = redis.call('HINCRBY', KEYS[4], id, 1)
      if n >= tonumber(ARGV[1]) then
        redis.call('RPUSH', KEYS[5], raw)
        redis.call('HDEL', KEYS[4], id)
        dead = dead + 1
      else
        redis.call('LPUSH', KEYS[1], raw)
        requeued = requeued + 1
      end
    end
  end
end
return {requeued, dead}
`)

const reclaimLimit = 1000

// RedisQueue is a FIFO list queue with leases kept in Redis. All state
// transitions run as Lua scripts, so concurrent consumers never lease the
// same item twice.
type RedisQueue struct {
	client        *redis.Client
	name          string
	leaseTimeout  time.Duration
	maxDeliveries int
	log           zerolog.Logger
}

// NewRedisClient creates a go-redis client whose reconnect backoff grows
// by 100ms per attempt up to 5s.
func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            cfg.RedisAddr,
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDB,
		MaxRetries:      5,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	})
}

// NewRedisQueue creates a RedisQueue on the given client.
func NewRedisQueue(client *redis.Client, cfg Config, log zerolog.Logger) *RedisQueue {
	def := DefaultConfig()
	name := cfg.Name
	if name == "" {
		name = def.Name
	}
	lease := cfg.LeaseTimeout
	if lease <= 0 {
		lease = def.LeaseTimeout
	}
	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = def.MaxDeliveries
	}
	return &RedisQueue{
		client:        client,
		name:          name,
		leaseTimeout:  lease,
		maxDeliveries: maxDeliveries,
		log:           log,
	}
}

// Enqueue appends the item to the tail of the list.
func (q *RedisQueue) Enqueue(ctx context.Context, item *Item) error {
	raw, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("rpush to %s: %w", q.name, err)
	}
	MessagesEnqueuedTotal.Inc()
	return nil
}

// DequeueBatch pops up to max items from the head of the list and leases them.
func (q *RedisQueue) DequeueBatch(ctx context.Context, max int) ([]*Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	prefix := uuid.New().String()
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.name, leasedKey(q.name), inflightKey(q.name)},
		max, q.leaseTimeout.Milliseconds(), prefix,
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("lease from %s: %w", q.name, err)
	}

	deliveries := make([]*Delivery, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		token, _ := res[i].(string)
		raw, _ := res[i+1].(string)
		deliveries = append(deliveries, newDelivery(token, raw))
	}
	MessagesLeasedTotal.Add(float64(len(deliveries)))
	return deliveries, nil
}

// Ack releases the leases of the given deliveries and forgets their
// redelivery counts.
func (q *RedisQueue) Ack(ctx context.Context, deliveries []*Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(deliveries))
	for _, d := range deliveries {
		id := ""
		if d.Item != nil {
			id = d.Item.ID
		}
		args = append(args, d.Handle, id)
	}
	acked, err := ackScript.Run(ctx, q.client,
		[]string{leasedKey(q.name), inflightKey(q.name), countsKey(q.name)}, args...,
	).Int64()
	if err != nil {
		return fmt.Errorf("ack %d items on %s: %w", len(deliveries), q.name, err)
	}
	MessagesAckedTotal.Add(float64(acked))
	if stale := int64(len(deliveries)) - acked; stale > 0 {
		q.log.Warn().Int64("stale_leases", stale).Str("queue", q.name).Msg("acked items whose lease had already expired")
	}
	return nil
}

// Reclaim returns expired leases to the head of the list, or to the dead
// list once an item has been delivered MaxDeliveries times.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, int, error) {
	res, err := reclaimScript.Run(ctx, q.client,
		[]string{q.name, leasedKey(q.name), inflightKey(q.name), countsKey(q.name), deadKey(q.name)},
		q.maxDeliveries, reclaimLimit,
	).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("reclaim leases on %s: %w", q.name, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("reclaim leases on %s: unexpected reply %v", q.name, res)
	}
	requeued, dead := int(res[0]), int(res[1])
	MessagesReclaimedTotal.Add(float64(requeued))
	DLQMessagesTotal.Add(float64(dead))

	if depth, err := q.client.LLen(ctx, q.name).Result(); err == nil {
		QueueDepth.Set(float64(depth))
	}
	return requeued, dead, nil
}

// Requeue moves up to max dead items back to the tail of the list.
func (q *RedisQueue) Requeue(ctx context.Context, max int) (int, error) {
	moved := 0
	for moved < max {
		err := q.client.LMove(ctx, deadKey(q.name), q.name, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, fmt.Errorf("requeue dead item: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Depth returns the number of dead items.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, deadKey(q.name)).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", deadKey(q.name), err)
	}
	return n, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
