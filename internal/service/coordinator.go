package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cwrk-planet/roulette-service/internal/domain"
	"github.com/cwrk-planet/roulette-service/internal/feed"
	"github.com/cwrk-planet/roulette-service/internal/ledger"
	"github.com/cwrk-planet/roulette-service/internal/round"
	"github.com/cwrk-planet/roulette-service/internal/roulette"
	"github.com/cwrk-planet/roulette-service/internal/store"
	"github.com/cwrk-planet/roulette-service/pkg/logger"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
)

// Feed is the change feed the coordinator publishes committed state to.
type Feed interface {
	feed.Publisher
	Subscribe(roomID string) *feed.Subscription
}

type Options struct {
	Rules  round.Rules
	Ledger *ledger.Ledger
	Random roulette.RandomSource
	// AutoCreate makes unknown room ids spring into existence in waiting
	// instead of failing with ErrRoomNotFound. Applies to reads and writes alike.
	AutoCreate bool

	Now          func() time.Time
	NewRoundID   func() string
	NewReceiptID func() (string, error)
	Logger       *slog.Logger
}

// Coordinator serialises every mutation of a room: ledger update, transition
// evaluation and commit happen under one per-room lock, and the committed
// state is published to the feed before the lock is released.
type Coordinator struct {
	store    store.RoomStore
	feed     Feed
	presence *PresenceService

	rules      round.Rules
	ledger     *ledger.Ledger
	random     roulette.RandomSource
	autoCreate bool

	now          func() time.Time
	newRoundID   func() string
	newReceiptID func() (string, error)
	log          *slog.Logger

	locks *roomLocks
}

func NewCoordinator(st store.RoomStore, f Feed, presence *PresenceService, opts Options) *Coordinator {
	if opts.Rules == (round.Rules{}) {
		opts.Rules = round.DefaultRules()
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(nil, decimal.NewFromInt(1))
	}
	if opts.Random == nil {
		opts.Random = roulette.SecureSource{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRoundID == nil {
		opts.NewRoundID = uuid.NewString
	}
	if opts.NewReceiptID == nil {
		opts.NewReceiptID = func() (string, error) { return gonanoid.New() }
	}
	if opts.Logger == nil {
		opts.Logger = logger.L()
	}
	if presence == nil {
		presence = NewPresenceService(st)
	}

	return &Coordinator{
		store:        st,
		feed:         f,
		presence:     presence,
		rules:        opts.Rules,
		ledger:       opts.Ledger,
		random:       opts.Random,
		autoCreate:   opts.AutoCreate,
		now:          opts.Now,
		newRoundID:   opts.NewRoundID,
		newReceiptID: opts.NewReceiptID,
		log:          opts.Logger.With(slog.String("component", "coordinator")),
		locks:        newRoomLocks(),
	}
}

func (c *Coordinator) Rules() round.Rules { return c.rules }

func (c *Coordinator) Presence() *PresenceService { return c.presence }

// Receipt is returned for an accepted contribution.
type Receipt struct {
	ID          string                     `json:"id"`
	Kind        domain.ContributionKind    `json:"kind"`
	Units       decimal.Decimal            `json:"units"`
	Participant domain.ParticipantSnapshot `json:"participant"`
	State       domain.Snapshot            `json:"state"`
}

// Join makes sure the room exists and records the player's presence. It does
// not create a participant.
func (c *Coordinator) Join(ctx context.Context, roomID string, id domain.Identity) (domain.Snapshot, error) {
	if err := id.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := c.Snapshot(ctx, roomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := c.presence.Touch(ctx, roomID, id); err != nil {
		c.log.Warn("presence touch failed", logger.Room(roomID), logger.Player(id.ID), logger.Err(err))
	}
	return snap, nil
}

// Contribute adds a stake for the player. Due timers are applied first, so a
// contribution arriving after the deadline resolves the round and is then
// rejected with ErrRoundLocked.
func (c *Coordinator) Contribute(ctx context.Context, roomID string, id domain.Identity, amount decimal.Decimal, kind domain.ContributionKind) (*Receipt, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case domain.KindGift:
	case domain.KindToken:
		if err := ledger.ValidateAmount(amount); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ErrInvalidKind
	}
	receiptID, err := c.newReceiptID()
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(roomID)
	defer unlock()

	now := c.now()
	var (
		rejected error
		advanced []round.Transition
		started  *round.Transition
		units    decimal.Decimal
	)
	st, err := c.apply(ctx, roomID, func(st *domain.RoomState) error {
		rejected, started = nil, nil

		var err error
		advanced, err = c.advance(st, now)
		if err != nil {
			return err
		}
		if err := c.rules.CheckContribution(st.Room, now); err != nil {
			rejected = err
			if len(advanced) > 0 {
				return nil
			}
			return store.ErrNoChange
		}

		before := decimal.Zero
		if i, ok := st.Find(id.ID); ok {
			before = st.Participants[i].StakeUnits
		}
		p, err := c.ledger.AddStake(st, id, amount, kind == domain.KindGift, now)
		if err != nil {
			return err
		}
		units = p.StakeUnits.Sub(before)
		if tr, ok := c.rules.AfterStake(st, now); ok {
			started = &tr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logTransitions(st, advanced)
	if rejected != nil {
		if len(advanced) > 0 {
			c.publish(st, now)
		}
		c.log.Debug("contribution rejected", logger.Room(roomID), logger.Player(id.ID), logger.Err(rejected))
		return nil, rejected
	}
	if started != nil {
		c.logTransitions(st, []round.Transition{*started})
	}
	snap := c.publish(st, now)

	idx, _ := st.Find(id.ID)
	part := snap.Participants[idx]
	c.log.Info("contribution accepted",
		logger.Room(roomID), logger.Player(id.ID),
		slog.String("receipt_id", receiptID),
		slog.String("kind", string(kind)),
		slog.String("units", units.String()),
		slog.String("stake_units", part.StakeUnits.String()),
		slog.String("total_stake_units", st.Room.TotalStakeUnits.String()),
	)

	return &Receipt{
		ID:          receiptID,
		Kind:        kind,
		Units:       units,
		Participant: part,
		State:       snap,
	}, nil
}

// Tick applies every timer that is due. Redundant and concurrent calls are
// safe: the second caller waits for the lock and then finds nothing to do.
func (c *Coordinator) Tick(ctx context.Context, roomID string) (*domain.RoomState, []round.Transition, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	now := c.now()
	var trs []round.Transition
	st, err := c.apply(ctx, roomID, func(st *domain.RoomState) error {
		var err error
		trs, err = c.advance(st, now)
		if err != nil {
			return err
		}
		if len(trs) == 0 {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(trs) > 0 {
		c.logTransitions(st, trs)
		c.publish(st, now)
	}
	return st, trs, nil
}

// Reset starts a new round for a resolved room and reports whether anything
// changed. Rooms that are open or counting down are returned untouched.
func (c *Coordinator) Reset(ctx context.Context, roomID string) (*domain.RoomState, bool, error) {
	unlock := c.locks.lock(roomID)
	defer unlock()

	now := c.now()
	var from domain.Status
	applied := false
	st, err := c.apply(ctx, roomID, func(st *domain.RoomState) error {
		from = st.Room.Status
		applied = round.Reset(st, now, c.ledger, c.newRoundID)
		if !applied {
			return store.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		c.logTransitions(st, []round.Transition{{From: from, To: st.Room.Status}})
		c.publish(st, now)
	}
	return st, applied, nil
}

// Snapshot is the pull side of the feed. Due timers are applied first.
func (c *Coordinator) Snapshot(ctx context.Context, roomID string) (domain.Snapshot, error) {
	st, err := c.load(ctx, roomID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if c.rules.Due(st.Room, c.now()) {
		if st, _, err = c.Tick(ctx, roomID); err != nil {
			return domain.Snapshot{}, err
		}
	}
	return c.snapshot(st, c.now()), nil
}

// Room reads only the room record unless a timer is due.
func (c *Coordinator) Room(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, err := c.getRoom(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	now := c.now()
	if c.rules.Due(room, now) {
		snap, err := c.Snapshot(ctx, roomID)
		return snap.Room, err
	}
	return domain.NewRoomSnapshot(room, now), nil
}

// Participants lists stakes in join order. Shares are taken against the sum
// of the listed stakes, which equals the room total.
func (c *Coordinator) Participants(ctx context.Context, roomID string) ([]domain.ParticipantSnapshot, error) {
	room, err := c.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if c.rules.Due(room, c.now()) {
		snap, err := c.Snapshot(ctx, roomID)
		return snap.Participants, err
	}
	parts, err := c.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	total, _ := ledger.Totals(parts)
	out := make([]domain.ParticipantSnapshot, 0, len(parts))
	for _, p := range parts {
		out = append(out, c.ledger.Snapshot(p, total))
	}
	return out, nil
}

// Subscribe registers with the feed first and then reads the current state,
// so no commit between the two can be missed.
func (c *Coordinator) Subscribe(ctx context.Context, roomID string) (*feed.Subscription, domain.Snapshot, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, domain.Snapshot{}, err
	}
	sub := c.feed.Subscribe(roomID)
	snap, err := c.Snapshot(ctx, roomID)
	if err != nil {
		sub.Close()
		return nil, domain.Snapshot{}, err
	}
	return sub, snap, nil
}

// TickAll ticks every room with a running timer and returns how many
// transitions were committed. Per-room failures are logged and skipped.
func (c *Coordinator) TickAll(ctx context.Context) (int, error) {
	ids, err := c.store.PendingRooms(ctx, c.rules.PendingStatuses())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		_, trs, err := c.Tick(ctx, id)
		if err != nil {
			c.log.Error("tick failed", logger.Room(id), logger.Err(err))
			continue
		}
		n += len(trs)
	}
	return n, nil
}

func (c *Coordinator) advance(st *domain.RoomState, now time.Time) ([]round.Transition, error) {
	roomID := st.Room.ID
	draw := func(es []roulette.Entry) (int64, error) {
		winner, err := roulette.Select(es, c.random)
		if errors.Is(err, domain.ErrNoParticipants) {
			c.log.Error("winner selection on an empty ledger, round left in countdown",
				logger.Room(roomID), slog.Bool("invariant", true), logger.Err(err))
		}
		return winner, err
	}
	return c.rules.Advance(st, now, draw, c.ledger, c.newRoundID)
}

func (c *Coordinator) apply(ctx context.Context, roomID string, fn store.Mutation) (*domain.RoomState, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	st, err := c.store.Apply(ctx, roomID, fn)
	if errors.Is(err, domain.ErrRoomNotFound) && c.autoCreate {
		if _, err := c.create(ctx, roomID); err != nil {
			return nil, err
		}
		st, err = c.store.Apply(ctx, roomID, fn)
	}
	return st, err
}

func (c *Coordinator) load(ctx context.Context, roomID string) (*domain.RoomState, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	st, err := c.store.Load(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) && c.autoCreate {
		return c.create(ctx, roomID)
	}
	return st, err
}

func (c *Coordinator) getRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	room, err := c.store.GetRoom(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) && c.autoCreate {
		st, err := c.create(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return st.Room, nil
	}
	return room, err
}

func (c *Coordinator) create(ctx context.Context, roomID string) (*domain.RoomState, error) {
	st, err := c.store.CreateRoom(ctx, domain.NewRoom(roomID, c.newRoundID(), c.now()))
	if err != nil {
		return nil, err
	}
	c.log.Info("room created", logger.Room(roomID))
	return st, nil
}

// View renders a state returned by Tick or Reset.
func (c *Coordinator) View(st *domain.RoomState) domain.Snapshot {
	return c.snapshot(st, c.now())
}

func (c *Coordinator) snapshot(st *domain.RoomState, now time.Time) domain.Snapshot {
	return domain.Snapshot{
		Room:         domain.NewRoomSnapshot(st.Room, now),
		Participants: c.ledger.List(st),
	}
}

func (c *Coordinator) publish(st *domain.RoomState, now time.Time) domain.Snapshot {
	snap := c.snapshot(st, now)
	c.feed.Publish(snap)
	return snap
}

func (c *Coordinator) logTransitions(st *domain.RoomState, trs []round.Transition) {
	for _, tr := range trs {
		attrs := []any{
			logger.Room(st.Room.ID),
			slog.String("from", string(tr.From)),
			slog.String("to", string(tr.To)),
			slog.Int64("round", st.Room.Round),
		}
		if tr.To == domain.StatusSpinning && st.Room.WinnerID != nil {
			attrs = append(attrs, slog.Int64("winner_id", *st.Room.WinnerID),
				slog.String("pot", st.Room.TotalStakeUnits.String()))
		}
		c.log.Info("room transition", attrs...)
	}
}
