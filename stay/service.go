/*
service.go - Command execution around the pure Lifecycle

PURPOSE:
  Service is the entry point used by the HTTP layer and the scheduler.
  For every command it:
    1. loads the reservation and the enabled tax rules
    2. runs the Lifecycle command (pure)
    3. claims rooms requested by the transition (atomic, before commit)
    4. commits the snapshot with an optimistic version check
    5. executes post-commit effects: room releases, folio postings,
       domain events, metrics

FAILURE SEMANTICS:
  Any failure in steps 1-4 leaves the stored reservation unchanged. Nights
  newly claimed in step 3 are released again when step 4 fails, except
  those the stored reservation holds after a concurrent commit. Failures
  in step 5 are logged and never undo the commit.

CONCURRENCY:
  Two commands on the same reservation race on the version check; the
  loser gets ErrStaleVersion. Two reservations racing for the same room
  race on RoomInventory.Reserve; the loser gets ErrRoomUnavailable.
*/
package stay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/events"
	"github.com/warp/stay-engine/logging"
	"go.uber.org/zap"
)

type ServiceConfig struct {
	Reservations Repository
	TaxRules     TaxRuleStore
	Rooms        RoomInventory
	Folio        FolioStore       // optional
	Publisher    events.Publisher // optional
	Observer     Observer         // optional
	Logger       *zap.Logger
	Lifecycle    Lifecycle
	Currency     billing.Currency
	Now          func() time.Time
}

type Service struct {
	reservations Repository
	taxRules     TaxRuleStore
	rooms        *RoomAssignmentCoordinator
	folio        *Folio
	publisher    events.Publisher
	observer     Observer
	logger       *zap.Logger
	lifecycle    Lifecycle
	currency     billing.Currency
	now          func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		reservations: cfg.Reservations,
		taxRules:     cfg.TaxRules,
		publisher:    cfg.Publisher,
		observer:     cfg.Observer,
		logger:       logging.OrNop(cfg.Logger),
		lifecycle:    cfg.Lifecycle,
		currency:     cfg.Currency,
		now:          cfg.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.currency == "" {
		s.currency = billing.XAF
	}
	if cfg.Folio != nil {
		s.folio = NewFolio(cfg.Folio)
	}
	s.rooms = NewRoomAssignmentCoordinator(cfg.Rooms, s.logger)
	return s
}

func (s *Service) Lifecycle() Lifecycle       { return s.lifecycle }
func (s *Service) Currency() billing.Currency { return s.currency }

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Get(ctx context.Context, id ReservationID) (Reservation, error) {
	return s.reservations.Load(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Reservation, error) {
	return s.reservations.List(ctx, filter)
}

// PreviewPrice prices a reservation without changing it. A CHECKED_OUT
// reservation returns its receipt unchanged, whatever the current rules.
func (s *Service) PreviewPrice(ctx context.Context, id ReservationID, method billing.BillingMethod, departing billing.Date) (billing.Quote, error) {
	r, err := s.reservations.Load(ctx, id)
	if err != nil {
		return billing.Quote{}, err
	}
	if r.Receipt != nil {
		return r.Receipt.quote(r), nil
	}
	rules, err := EnabledTaxRules(ctx, s.taxRules)
	if err != nil {
		return billing.Quote{}, err
	}
	return s.lifecycle.Preview(r, method, departing, rules)
}

// Folio returns the reservation's postings in recording order.
func (s *Service) Folio(ctx context.Context, id ReservationID) ([]FolioEntry, error) {
	if _, err := s.reservations.Load(ctx, id); err != nil {
		return nil, err
	}
	if s.folio == nil {
		return nil, nil
	}
	return s.folio.Entries(ctx, id)
}

// =============================================================================
// COMMANDS
// =============================================================================

// Book creates a reservation. ID and booking reference are generated when
// empty; a price without currency takes the service currency.
func (s *Service) Book(ctx context.Context, cmd BookCommand) (res Reservation, err error) {
	defer func() { s.observer.CommandCompleted(CmdBook, err) }()

	if cmd.ID == "" {
		cmd.ID = ReservationID(uuid.NewString())
	}
	if cmd.BookingReference == "" {
		cmd.BookingReference = NewBookingReference()
	}
	if cmd.PricePerNight.Currency == "" {
		cmd.PricePerNight = orZero(cmd.PricePerNight, s.currency)
	}

	rules, err := EnabledTaxRules(ctx, s.taxRules)
	if err != nil {
		return Reservation{}, err
	}
	now := s.now()
	tr, err := s.lifecycle.Book(cmd, rules, now)
	if err != nil {
		return Reservation{}, err
	}
	return s.commit(ctx, Reservation{}, tr, now, func(next Reservation) error {
		return s.reservations.Create(ctx, next)
	})
}

func (s *Service) Confirm(ctx context.Context, id ReservationID) (Reservation, error) {
	return s.execute(ctx, CmdConfirm, id, func(r Reservation, _ []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.Confirm(r, now)
	})
}

func (s *Service) AssignRoom(ctx context.Context, id ReservationID, room RoomNumber) (Reservation, error) {
	return s.execute(ctx, CmdAssignRoom, id, func(r Reservation, _ []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.AssignRoom(r, room, now)
	})
}

func (s *Service) CheckIn(ctx context.Context, id ReservationID, cmd CheckInCommand) (Reservation, error) {
	return s.execute(ctx, CmdCheckIn, id, func(r Reservation, rules []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.CheckIn(r, cmd, rules, now)
	})
}

func (s *Service) CheckOut(ctx context.Context, id ReservationID, cmd CheckOutCommand) (Reservation, error) {
	return s.execute(ctx, CmdCheckOut, id, func(r Reservation, rules []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.CheckOut(r, cmd, rules, now)
	})
}

func (s *Service) RecordPayment(ctx context.Context, id ReservationID, cmd PaymentCommand) (Reservation, error) {
	return s.execute(ctx, CmdRecordPayment, id, func(r Reservation, rules []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.RecordPayment(r, cmd, rules, now)
	})
}

func (s *Service) AddCharge(ctx context.Context, id ReservationID, charge billing.ExtraCharge) (Reservation, error) {
	return s.execute(ctx, CmdAddCharge, id, func(r Reservation, rules []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.AddCharge(r, charge, rules, now)
	})
}

func (s *Service) Cancel(ctx context.Context, id ReservationID) (Reservation, error) {
	return s.execute(ctx, CmdCancel, id, func(r Reservation, _ []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.Cancel(r, now)
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id ReservationID) (Reservation, error) {
	return s.execute(ctx, CmdMarkNoShow, id, func(r Reservation, _ []billing.TaxRule, now time.Time) (Transition, error) {
		return s.lifecycle.MarkNoShow(r, now)
	})
}

// MarkNoShows marks every eligible reservation as NO_SHOW and returns the
// ones it changed. Reservations that moved on concurrently are skipped.
func (s *Service) MarkNoShows(ctx context.Context) ([]ReservationID, error) {
	now := s.now()
	cutoff := s.lifecycle.Today(now.Add(-s.lifecycle.NoShowGrace))
	candidates, err := s.reservations.NoShowCandidates(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var marked []ReservationID
	for _, c := range candidates {
		if now.Before(s.lifecycle.NoShowEligibleAt(c)) {
			continue
		}
		if _, err := s.MarkNoShow(ctx, c.ID); err != nil {
			if IsConflict(err) || IsTransition(err) {
				s.logger.Info("no-show skipped", zap.String("reservation_id", string(c.ID)), zap.Error(err))
				continue
			}
			return marked, err
		}
		marked = append(marked, c.ID)
	}
	return marked, nil
}

// HoldOverstays extends the room hold of every in-house guest still there
// after the reserved check-out day, through tonight. A room already taken
// by another reservation for those nights is logged and counted as a room
// conflict; the guest keeps the room they are in either way.
func (s *Service) HoldOverstays(ctx context.Context) ([]ReservationID, error) {
	now := s.now()
	today := s.lifecycle.Today(now)
	status := StatusCheckedIn
	inHouse, err := s.reservations.List(ctx, ListFilter{Status: &status})
	if err != nil {
		return nil, err
	}

	var extended []ReservationID
	for _, r := range inHouse {
		if r.RoomNumber == "" || !today.After(r.CheckOut) {
			continue
		}
		rng := billing.DateRange{From: r.CheckOut, To: today.AddDays(1)}
		added, err := s.rooms.Claim(ctx, r.ID, r.RoomNumber, rng)
		if err != nil {
			if errors.Is(err, ErrRoomUnavailable) {
				s.observer.RoomConflict()
				s.logger.Warn("overstay hold conflicts with another reservation",
					zap.String("reservation_id", string(r.ID)),
					zap.String("room", string(r.RoomNumber)),
					zap.Stringer("range", rng),
					zap.Error(err))
				continue
			}
			return extended, err
		}
		if len(added) == 0 {
			continue
		}
		// The guest may have checked out or moved while we claimed.
		s.undoClaims(ctx, r.ID, []roomClaim{{Room: r.RoomNumber, Nights: added}}, now)
		if current, err := s.reservations.Load(ctx, r.ID); err != nil || !current.HoldsNight(r.RoomNumber, today, today) {
			continue
		}
		s.logger.Info("overstay hold extended",
			zap.String("reservation_id", string(r.ID)),
			zap.String("room", string(r.RoomNumber)),
			zap.Stringer("range", rng))
		extended = append(extended, r.ID)
	}
	return extended, nil
}

// =============================================================================
// EXECUTION
// =============================================================================

type commandFunc func(current Reservation, rules []billing.TaxRule, now time.Time) (Transition, error)

func (s *Service) execute(ctx context.Context, cmd Command, id ReservationID, fn commandFunc) (res Reservation, err error) {
	defer func() { s.observer.CommandCompleted(cmd, err) }()

	current, err := s.reservations.Load(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	rules, err := EnabledTaxRules(ctx, s.taxRules)
	if err != nil {
		return Reservation{}, err
	}
	now := s.now()
	tr, err := fn(current, rules, now)
	if err != nil {
		s.logger.Debug("command rejected",
			zap.String("command", string(cmd)),
			zap.String("reservation_id", string(id)),
			zap.Error(err))
		return Reservation{}, err
	}
	return s.commit(ctx, current, tr, now, func(next Reservation) error {
		return s.reservations.Save(ctx, next, current.Version)
	})
}

func (s *Service) commit(ctx context.Context, previous Reservation, tr Transition, now time.Time, write func(Reservation) error) (Reservation, error) {
	if tr.Unchanged {
		return previous, nil
	}
	claims, err := s.claimRooms(ctx, tr)
	if err != nil {
		return Reservation{}, err
	}

	next := tr.Reservation
	next.Version = previous.Version + 1
	if err := write(next); err != nil {
		s.undoClaims(ctx, next.ID, claims, now)
		return Reservation{}, err
	}

	s.logger.Info("reservation updated",
		zap.String("command", string(tr.Command)),
		zap.String("reservation_id", string(next.ID)),
		zap.String("status", string(next.Status)),
		zap.Int64("version", next.Version))

	s.afterCommit(ctx, tr, next, now)
	return next, nil
}

// roomClaim is what one claim effect added to the inventory.
type roomClaim struct {
	Room   RoomNumber
	Nights []billing.Date
}

// claimRooms runs the pre-commit effects and returns the nights each one
// newly held. Nights the reservation already held are not included, so
// undoing a claim never frees them.
func (s *Service) claimRooms(ctx context.Context, tr Transition) ([]roomClaim, error) {
	var claims []roomClaim
	for _, eff := range tr.Effects {
		if !eff.PreCommit() {
			continue
		}
		added, err := s.rooms.Claim(ctx, tr.Reservation.ID, eff.Room, eff.Range)
		if err != nil {
			if errors.Is(err, ErrRoomUnavailable) {
				s.observer.RoomConflict()
			}
			s.undoClaims(ctx, tr.Reservation.ID, claims, s.now())
			return nil, err
		}
		if len(added) > 0 {
			claims = append(claims, roomClaim{Room: eff.Room, Nights: added})
		}
	}
	return claims, nil
}

// undoClaims frees the nights of claims whose write failed. A concurrent
// command on the same reservation may have committed in the meantime and
// rely on some of those nights, so nights the stored reservation holds
// are kept. When the stored state cannot be read nothing is freed.
func (s *Service) undoClaims(ctx context.Context, holder ReservationID, claims []roomClaim, now time.Time) {
	if len(claims) == 0 {
		return
	}
	committed, err := s.reservations.Load(ctx, holder)
	if err != nil && !errors.Is(err, ErrReservationNotFound) {
		s.logger.Error("room claim rollback skipped",
			zap.String("reservation_id", string(holder)),
			zap.Error(err))
		return
	}
	today := s.lifecycle.Today(now)
	for _, c := range claims {
		var free []billing.Date
		for _, night := range c.Nights {
			if err == nil && committed.HoldsNight(c.Room, night, today) {
				continue
			}
			free = append(free, night)
		}
		if err := s.rooms.Unclaim(ctx, holder, c.Room, free); err != nil {
			s.logger.Error("room claim rollback failed",
				zap.String("reservation_id", string(holder)),
				zap.String("room", string(c.Room)),
				zap.Error(err))
		}
	}
}

func (s *Service) afterCommit(ctx context.Context, tr Transition, next Reservation, now time.Time) {
	for _, eff := range tr.Effects {
		switch eff.Kind {
		case EffectReleaseRoom:
			if err := s.rooms.Release(ctx, next.ID, eff.Room); err != nil {
				s.logger.Error("room release failed",
					zap.String("reservation_id", string(next.ID)),
					zap.String("room", string(eff.Room)),
					zap.Error(err))
			}
		case EffectRecordPayment:
			s.observer.PaymentRecorded(eff.Method, eff.Amount)
		}
	}

	if s.folio != nil {
		if err := s.folio.Append(ctx, folioEntries(tr, next.Version, now)); err != nil {
			s.logger.Error("folio posting failed",
				zap.String("reservation_id", string(next.ID)),
				zap.Int64("version", next.Version),
				zap.Error(err))
		}
	}

	for _, e := range eventsFor(tr, next, now) {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("event publish failed",
				zap.String("event", string(e.Type)),
				zap.String("reservation_id", string(next.ID)),
				zap.Error(err))
		}
	}
}

// =============================================================================
// EVENTS
// =============================================================================

var commandEvents = map[Command]events.Type{
	CmdBook:          events.ReservationBooked,
	CmdConfirm:       events.ReservationConfirmed,
	CmdAssignRoom:    events.ReservationRoomAssigned,
	CmdCheckIn:       events.ReservationCheckedIn,
	CmdCheckOut:      events.ReservationCheckedOut,
	CmdRecordPayment: events.PaymentRecorded,
	CmdAddCharge:     events.ChargeAdded,
	CmdCancel:        events.ReservationCancelled,
	CmdMarkNoShow:    events.ReservationNoShow,
}

func eventsFor(tr Transition, r Reservation, now time.Time) []events.Event {
	base := func(t events.Type) events.Event {
		e := events.New(t, string(r.ID), now)
		e.BookingReference = r.BookingReference
		e.Status = string(r.Status)
		e.Version = r.Version
		e.Data = map[string]any{
			"room":          string(r.RoomNumber),
			"grandTotal":    r.GrandTotal().Value.String(),
			"amountPaid":    r.AmountPaid.Value.String(),
			"paymentStatus": string(r.PaymentStatus),
			"currency":      string(r.Currency),
		}
		return e
	}

	out := []events.Event{base(commandEvents[tr.Command])}
	for _, eff := range tr.Effects {
		if eff.Kind != EffectRecordPayment || tr.Command == CmdRecordPayment {
			continue
		}
		e := base(events.PaymentRecorded)
		e.Data["amount"] = eff.Amount.Value.String()
		e.Data["method"] = string(eff.Method)
		out = append(out, e)
	}
	if tr.Command == CmdAddCharge || tr.Command == CmdRecordPayment {
		for _, eff := range tr.Effects {
			out[0].Data["amount"] = eff.Amount.Value.String()
			if eff.Label != "" {
				out[0].Data["label"] = eff.Label
			}
			if eff.Method != "" {
				out[0].Data["method"] = string(eff.Method)
			}
		}
	}
	return out
}

// NewBookingReference returns a short human-readable reference, BK-XXXXXXXX.
func NewBookingReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "BK-" + strings.ToUpper(id[:8])
}
