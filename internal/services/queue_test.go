package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkorir/bookhold/internal/events"
	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/repository"
	"github.com/jkorir/bookhold/internal/repository/memory"
)

// fakeClock is a manually advanced time source for simulating elapsed hold
// windows.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type queueFixture struct {
	queue *QueueService
	repo  *memory.ReservationRepository
	bus   *events.Bus
	clock *fakeClock
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	repo := memory.NewReservationRepository()
	bus := events.NewBus(slog.Default())
	clock := newFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	queue := NewQueueService(repo, bus, slog.Default()).WithClock(clock.Now)
	return &queueFixture{queue: queue, repo: repo, bus: bus, clock: clock}
}

func (f *queueFixture) collectEvents(eventType events.Type) *[]events.Event {
	var collected []events.Event
	f.bus.Subscribe(eventType, func(ctx context.Context, e events.Event) error {
		collected = append(collected, e)
		return nil
	})
	return &collected
}

func TestQueueService_ReserveBook_PublishesEvent(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	reserved := f.collectEvents(events.TypeBookReserved)

	userID := models.NewUserID()
	bookID := models.NewBookID()

	reservation, err := f.queue.ReserveBook(ctx, userID, bookID)
	require.NoError(t, err)

	assert.Equal(t, models.ReservationStatusActive, reservation.Status)
	assert.Equal(t, f.clock.Now(), reservation.ReservedAt)

	stored, err := f.repo.FindByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation, stored)

	require.Len(t, *reserved, 1)
	assert.Equal(t, reservation.ID, (*reserved)[0].ReservationID)
	assert.Equal(t, bookID, (*reserved)[0].BookID)
}

func TestQueueService_ReserveBook_DuplicatePrevention(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	userID := models.NewUserID()
	bookID := models.NewBookID()
	otherBook := models.NewBookID()

	_, err := f.queue.ReserveBook(ctx, userID, bookID)
	require.NoError(t, err)

	// Same (user, book) pair fails
	_, err = f.queue.ReserveBook(ctx, userID, bookID)
	assert.ErrorIs(t, err, ErrAlreadyReserved)

	// Same user, different book succeeds
	_, err = f.queue.ReserveBook(ctx, userID, otherBook)
	assert.NoError(t, err)

	// A different user may queue for the same book
	_, err = f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	assert.NoError(t, err)
}

func TestQueueService_ReserveBook_DuplicateAgainstReadyReservation(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	userID := models.NewUserID()
	bookID := models.NewBookID()

	_, err := f.queue.ReserveBook(ctx, userID, bookID)
	require.NoError(t, err)
	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	_, err = f.queue.ReserveBook(ctx, userID, bookID)
	assert.ErrorIs(t, err, ErrAlreadyReserved)
}

func TestQueueService_ReserveBook_AllowedAfterTerminalStates(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	userID := models.NewUserID()
	bookID := models.NewBookID()

	first, err := f.queue.ReserveBook(ctx, userID, bookID)
	require.NoError(t, err)
	_, err = f.queue.CancelReservation(ctx, first.ID)
	require.NoError(t, err)

	// A cancelled reservation no longer blocks a new one
	_, err = f.queue.ReserveBook(ctx, userID, bookID)
	assert.NoError(t, err)
}

func TestQueueService_NextInQueue_FIFOByReservationTime(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	userA := models.NewUserID()
	userB := models.NewUserID()
	userC := models.NewUserID()

	first, err := f.queue.ReserveBook(ctx, userA, bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.queue.ReserveBook(ctx, userB, bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.queue.ReserveBook(ctx, userC, bookID)
	require.NoError(t, err)

	next, err := f.queue.NextInQueue(ctx, bookID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)

	posA, err := f.queue.QueuePosition(ctx, bookID, userA)
	require.NoError(t, err)
	posB, err := f.queue.QueuePosition(ctx, bookID, userB)
	require.NoError(t, err)
	posC, err := f.queue.QueuePosition(ctx, bookID, userC)
	require.NoError(t, err)
	assert.Equal(t, 1, posA)
	assert.Equal(t, 2, posB)
	assert.Equal(t, 3, posC)

	// Someone who never reserved has no position
	pos, err := f.queue.QueuePosition(ctx, bookID, models.NewUserID())
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
}

func TestQueueService_NextInQueue_EmptyQueue(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	next, err := f.queue.NextInQueue(ctx, models.NewBookID())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestQueueService_NotifyNextInQueue(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	ready := f.collectEvents(events.TypeReservationReady)
	bookID := models.NewBookID()

	reservation, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)

	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	stored, err := f.repo.FindByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReady, stored.Status)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(models.HoldPeriod), *stored.ExpiresAt)
	assert.Equal(t, 3, stored.RemainingDays(f.clock.Now()))

	require.Len(t, *ready, 1)
	assert.Equal(t, reservation.ID, (*ready)[0].ReservationID)
	require.NotNil(t, (*ready)[0].ExpiresAt)
	assert.Equal(t, *stored.ExpiresAt, *(*ready)[0].ExpiresAt)
}

func TestQueueService_NotifyNextInQueue_EmptyQueueIsNoOp(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	ready := f.collectEvents(events.TypeReservationReady)

	assert.NoError(t, f.queue.NotifyNextInQueue(ctx, models.NewBookID()))
	assert.Empty(t, *ready)
}

func TestQueueService_ProcessExpiredReservations(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	expiredEvents := f.collectEvents(events.TypeReservationExpired)
	bookID := models.NewBookID()

	reservation, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	// Within the window nothing expires
	f.clock.Advance(48 * time.Hour)
	count, err := f.queue.ProcessExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Past the window the reservation lapses
	f.clock.Advance(48 * time.Hour)
	count, err = f.queue.ProcessExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := f.repo.FindByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusExpired, stored.Status)

	require.Len(t, *expiredEvents, 1)
	assert.Equal(t, reservation.ID, (*expiredEvents)[0].ReservationID)

	// Second sweep with no state change expires nothing
	count, err = f.queue.ProcessExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, *expiredEvents, 1)
}

func TestQueueService_ExpirationCascadesToNextInLine(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	userA := models.NewUserID()
	userB := models.NewUserID()
	userC := models.NewUserID()

	a, err := f.queue.ReserveBook(ctx, userA, bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.queue.ReserveBook(ctx, userB, bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	c, err := f.queue.ReserveBook(ctx, userC, bookID)
	require.NoError(t, err)

	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	f.clock.Advance(models.HoldPeriod + time.Hour)
	count, err := f.queue.ProcessExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A expired, B is now ready, C is still waiting
	storedA, err := f.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusExpired, storedA.Status)

	storedB, err := f.repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReady, storedB.Status)

	storedC, err := f.repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusActive, storedC.Status)

	// B's lapse hands the slot to C
	f.clock.Advance(models.HoldPeriod + time.Hour)
	count, err = f.queue.ProcessExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	storedC, err = f.repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReady, storedC.Status)
}

func TestQueueService_CancelReadyReservationCascades(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)

	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	cancelled, err := f.queue.CancelReservation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, cancelled.Status)

	storedB, err := f.repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReady, storedB.Status)
}

func TestQueueService_CancelActiveReservationDoesNotCascade(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)

	_, err = f.queue.CancelReservation(ctx, a.ID)
	require.NoError(t, err)

	// B simply moves up; no hold window starts
	storedB, err := f.repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusActive, storedB.Status)

	pos, err := f.queue.QueuePosition(ctx, bookID, b.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestQueueService_CancelPublishesEventOnlyForReadyHolds(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	cancelledEvents := f.collectEvents(events.TypeReservationCancelled)
	bookID := models.NewBookID()

	// Cancelling a queued reservation frees no held copy: no event
	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	_, err = f.queue.CancelReservation(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, *cancelledEvents)

	// Cancelling a ready hold releases its copy: exactly one event
	b, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))
	_, err = f.queue.CancelReservation(ctx, b.ID)
	require.NoError(t, err)

	require.Len(t, *cancelledEvents, 1)
	assert.Equal(t, b.ID, (*cancelledEvents)[0].ReservationID)
	assert.Equal(t, bookID, (*cancelledEvents)[0].BookID)
}

func TestQueueService_CancelTerminalReservationFails(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	_, err = f.queue.FulfillReservation(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.queue.CancelReservation(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestQueueService_CancelUnknownReservation(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.queue.CancelReservation(ctx, models.NewReservationID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQueueService_FulfillReservation(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	readyEvents := f.collectEvents(events.TypeReservationReady)
	bookID := models.NewBookID()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)

	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))
	require.Len(t, *readyEvents, 1)

	fulfilled, err := f.queue.FulfillReservation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusFulfilled, fulfilled.Status)

	// Fulfillment consumed the slot: B must not have been notified
	storedB, err := f.repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusActive, storedB.Status)
	assert.Len(t, *readyEvents, 1)
}

func TestQueueService_FulfillExpiredReservationFails(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)
	require.NoError(t, f.queue.NotifyNextInQueue(ctx, bookID))

	f.clock.Advance(models.HoldPeriod + time.Hour)
	_, err = f.queue.FulfillReservation(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrReservationExpired)
}

func TestQueueService_FulfillActiveReservationFails(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), models.NewBookID())
	require.NoError(t, err)

	_, err = f.queue.FulfillReservation(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestQueueService_HandleBookAvailableAdvancesQueue(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	bookID := models.NewBookID()

	a, err := f.queue.ReserveBook(ctx, models.NewUserID(), bookID)
	require.NoError(t, err)

	f.bus.Subscribe(events.TypeBookAvailable, f.queue.HandleBookAvailable)
	f.bus.Publish(ctx, events.NewBookAvailable(bookID, f.clock.Now()))

	stored, err := f.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReady, stored.Status)
}
