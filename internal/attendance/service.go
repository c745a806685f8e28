package attendance

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"absensi/internal/notify"
	"absensi/internal/user"
	"absensi/internal/verify"
)

// StatusPresent is the status written on clock-in.
const StatusPresent = "Hadir"

// Scan outcomes.
const (
	EventClockIn  = "Clock In"
	EventClockOut = "Clock Out"
)

var (
	ErrUnknownTag      = errors.New("rfid tag not registered")
	ErrFaceNotVerified = errors.New("face not verified")
	ErrAlreadyComplete = errors.New("already clocked in and out today")
)

var scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absensi_scans_total",
	Help: "RFID scan outcomes.",
}, []string{"outcome"})

// Store is the persistence surface the state machine drives.
type Store interface {
	ClockIn(ctx context.Context, userID string, day, now time.Time) (Entry, bool, error)
	ClockOut(ctx context.Context, userID string, day, now time.Time) (Entry, bool, error)
	ListForUser(ctx context.Context, userID string) ([]Entry, error)
}

// Directory resolves RFID tags to users.
type Directory interface {
	GetByRFID(ctx context.Context, tag string) (user.User, error)
}

// Notifier receives attendance events after they are committed.
type Notifier interface {
	Publish(ctx context.Context, evt notify.Event) error
}

// Result describes a completed scan.
type Result struct {
	Event string
	User  user.User
	Entry Entry
}

// Service runs the per-user per-day clock-in/clock-out state machine. Each
// day a user moves through NoEntry, ClockedIn, and complete; every successful
// transition consumes the face-verification mark.
type Service struct {
	store    Store
	dir      Directory
	sessions verify.Sessions
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a service. loc is the reference timezone used to decide
// which calendar day a scan belongs to.
func NewService(store Store, dir Directory, sessions verify.Sessions, notifier Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		dir:      dir,
		sessions: sessions,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// Scan processes one RFID read. The tag must belong to a known user holding
// an unexpired verification mark. The first scan of the day opens the entry,
// the second closes it, and any further scan fails with ErrAlreadyComplete.
func (s *Service) Scan(ctx context.Context, uid string) (Result, error) {
	u, err := s.dir.GetByRFID(ctx, user.NormalizeTag(uid))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			scansTotal.WithLabelValues("unknown_tag").Inc()
			return Result{}, ErrUnknownTag
		}
		return Result{}, err
	}

	verified, err := s.sessions.Verified(ctx, u.ID)
	if err != nil {
		return Result{}, err
	}
	if !verified {
		scansTotal.WithLabelValues("not_verified").Inc()
		return Result{}, ErrFaceNotVerified
	}

	now := s.now().In(s.loc)
	day := Day(now)

	res := Result{User: u}
	entry, created, err := s.store.ClockIn(ctx, u.ID, day, now)
	if err != nil {
		return Result{}, err
	}
	if created {
		res.Event = EventClockIn
	} else {
		entry, created, err = s.store.ClockOut(ctx, u.ID, day, now)
		if err != nil {
			return Result{}, err
		}
		if !created {
			scansTotal.WithLabelValues("already_complete").Inc()
			return Result{}, ErrAlreadyComplete
		}
		res.Event = EventClockOut
	}
	res.Entry = entry
	scansTotal.WithLabelValues("ok").Inc()

	// One verification authorizes exactly one scan event.
	if err := s.sessions.Clear(ctx, u.ID); err != nil {
		log.Printf("clear verification for %s failed: %v", u.ID, err)
	}

	if s.notifier != nil {
		evt := notify.Event{
			Event:   res.Event,
			Name:    u.Name,
			ClockIn: entry.ClockIn.In(s.loc).Format("15:04:05"),
		}
		if entry.ClockOut != nil {
			evt.ClockOut = entry.ClockOut.In(s.loc).Format("15:04:05")
		}
		if err := s.notifier.Publish(ctx, evt); err != nil {
			log.Printf("notification publish failed: %v", err)
		}
	}

	return res, nil
}

// ListForUser returns the user's attendance history.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Entry, error) {
	return s.store.ListForUser(ctx, userID)
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
