/*
Package redis provides a Redis-backed stay.RoomInventory for deployments
where several API instances share one room calendar.

KEY LAYOUT:
  <prefix>:night:<room>:<YYYY-MM-DD>  -> holder reservation id
  <prefix>:hold:<room>:<holder>       -> set of night keys held

ATOMICITY:
  Reserve runs as one Lua script: it checks every night of the range and
  writes none of them if any is held by another reservation. Redis runs
  scripts one at a time, so two concurrent claims for an overlapping range
  cannot both succeed.

  Reserve reports the nights it newly set, nights the holder already had
  are left out. ReleaseNights undoes exactly those when the reservation
  write that followed the claim failed.

  Release deletes only the nights whose value is still the releasing
  holder, so a stale release never frees a night someone else now holds.

SEE ALSO:
  - stay/rooms.go: RoomAssignmentCoordinator (the caller)
  - store/sqlite/sqlite.go: the same contract on a room_nights table
*/
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
)

// KEYS[1] is the hold set, KEYS[2..] are the nights. ARGV[1] is the holder.
// Returns {""} followed by the night keys newly set on success, or
// {blocking reservation id} when a night is held by someone else.
const reserveScript = `
for i = 2, #KEYS do
  local current = redis.call("GET", KEYS[i])
  if current and current ~= ARGV[1] then
    return {current}
  end
end
local added = {""}
for i = 2, #KEYS do
  if not redis.call("GET", KEYS[i]) then
    redis.call("SET", KEYS[i], ARGV[1])
    table.insert(added, KEYS[i])
  end
  redis.call("SADD", KEYS[1], KEYS[i])
end
return added
`

// KEYS[1] is the hold set. ARGV[1] is the holder.
const releaseScript = `
local nights = redis.call("SMEMBERS", KEYS[1])
for _, key in ipairs(nights) do
  if redis.call("GET", key) == ARGV[1] then
    redis.call("DEL", key)
  end
end
redis.call("DEL", KEYS[1])
return #nights
`

// KEYS[1] is the hold set, KEYS[2..] are the nights. ARGV[1] is the holder.
const releaseNightsScript = `
for i = 2, #KEYS do
  if redis.call("GET", KEYS[i]) == ARGV[1] then
    redis.call("DEL", KEYS[i])
    redis.call("SREM", KEYS[1], KEYS[i])
  end
end
return 0
`

// Options configures NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewClient connects and pings with a short timeout.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	var tlsConf *tls.Config
	if opts.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: tlsConf,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// RoomInventory implements stay.RoomInventory.
type RoomInventory struct {
	client  goredis.UniversalClient
	prefix  string
	reserve *goredis.Script
	release *goredis.Script
	partial *goredis.Script
}

var _ stay.RoomInventory = (*RoomInventory)(nil)

func NewRoomInventory(client goredis.UniversalClient, prefix string) *RoomInventory {
	if prefix == "" {
		prefix = "stay"
	}
	return &RoomInventory{
		client:  client,
		prefix:  prefix,
		reserve: goredis.NewScript(reserveScript),
		release: goredis.NewScript(releaseScript),
		partial: goredis.NewScript(releaseNightsScript),
	}
}

func (i *RoomInventory) IsAvailable(ctx context.Context, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) (bool, error) {
	keys := i.nightKeys(room, rng.EachNight())
	if len(keys) == 0 {
		return true, nil
	}
	values, err := i.client.MGet(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("room availability: %w", err)
	}
	for _, v := range values {
		if h, ok := v.(string); ok && h != string(holder) {
			return false, nil
		}
	}
	return true, nil
}

func (i *RoomInventory) Reserve(ctx context.Context, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) ([]billing.Date, error) {
	nights := rng.EachNight()
	keys := i.nightKeys(room, nights)
	if len(keys) == 0 {
		return nil, nil
	}
	reply, err := i.reserve.Run(ctx, i.client, append([]string{i.holdKey(room, holder)}, keys...), string(holder)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("reserve room: %w", err)
	}
	if len(reply) == 0 {
		return nil, errors.New("reserve room: empty script reply")
	}
	if heldBy := reply[0]; heldBy != "" {
		return nil, &stay.RoomUnavailableError{Room: room, Range: rng, HeldBy: stay.ReservationID(heldBy)}
	}

	byKey := make(map[string]billing.Date, len(keys))
	for n, key := range keys {
		byKey[key] = nights[n]
	}
	added := make([]billing.Date, 0, len(reply)-1)
	for _, key := range reply[1:] {
		added = append(added, byKey[key])
	}
	return added, nil
}

func (i *RoomInventory) Release(ctx context.Context, room stay.RoomNumber, holder stay.ReservationID) error {
	err := i.release.Run(ctx, i.client, []string{i.holdKey(room, holder)}, string(holder)).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("release room: %w", err)
	}
	return nil
}

func (i *RoomInventory) ReleaseNights(ctx context.Context, room stay.RoomNumber, holder stay.ReservationID, nights []billing.Date) error {
	if len(nights) == 0 {
		return nil
	}
	keys := append([]string{i.holdKey(room, holder)}, i.nightKeys(room, nights)...)
	err := i.partial.Run(ctx, i.client, keys, string(holder)).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("release room nights: %w", err)
	}
	return nil
}

// =============================================================================
// KEYS
// =============================================================================

func (i *RoomInventory) nightKeys(room stay.RoomNumber, nights []billing.Date) []string {
	keys := make([]string, len(nights))
	for n, night := range nights {
		keys[n] = fmt.Sprintf("%s:night:%s:%s", i.prefix, room, night)
	}
	return keys
}

func (i *RoomInventory) holdKey(room stay.RoomNumber, holder stay.ReservationID) string {
	return fmt.Sprintf("%s:hold:%s:%s", i.prefix, room, holder)
}
