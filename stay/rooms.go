package stay

import (
	"context"
	"errors"

	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/logging"
	"go.uber.org/zap"
)

// =============================================================================
// ROOM ASSIGNMENT COORDINATOR
// =============================================================================

// RoomAssignmentCoordinator validates a room claim against the inventory at
// the moment of commit. The availability read is only a fast path; the
// inventory's atomic Reserve is what decides a race.
type RoomAssignmentCoordinator struct {
	Inventory RoomInventory
	Logger    *zap.Logger
}

func NewRoomAssignmentCoordinator(inv RoomInventory, logger *zap.Logger) *RoomAssignmentCoordinator {
	return &RoomAssignmentCoordinator{Inventory: inv, Logger: logging.OrNop(logger)}
}

// Claim holds room for every night of rng on behalf of holder and returns
// the nights that were not already held by holder. Any conflict is
// reported as *RoomUnavailableError.
func (c *RoomAssignmentCoordinator) Claim(ctx context.Context, holder ReservationID, room RoomNumber, rng billing.DateRange) ([]billing.Date, error) {
	ok, err := c.Inventory.IsAvailable(ctx, room, rng, holder)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.Logger.Info("room unavailable on re-check",
			zap.String("reservation_id", string(holder)),
			zap.String("room", string(room)),
			zap.Stringer("range", rng))
		return nil, &RoomUnavailableError{Room: room, Range: rng}
	}

	added, err := c.Inventory.Reserve(ctx, room, rng, holder)
	if err != nil {
		var ru *RoomUnavailableError
		if errors.As(err, &ru) {
			return nil, ru
		}
		if errors.Is(err, ErrRoomUnavailable) {
			return nil, &RoomUnavailableError{Room: room, Range: rng}
		}
		return nil, err
	}
	return added, nil
}

// Release frees all of the holder's nights on room. Used after commit.
func (c *RoomAssignmentCoordinator) Release(ctx context.Context, holder ReservationID, room RoomNumber) error {
	return c.Inventory.Release(ctx, room, holder)
}

// Unclaim frees the given nights only. Used to undo a claim whose
// reservation write failed.
func (c *RoomAssignmentCoordinator) Unclaim(ctx context.Context, holder ReservationID, room RoomNumber, nights []billing.Date) error {
	if len(nights) == 0 {
		return nil
	}
	return c.Inventory.ReleaseNights(ctx, room, holder, nights)
}
