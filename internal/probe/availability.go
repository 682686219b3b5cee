package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/resymon/internal/domain"
	"github.com/hamed0406/resymon/internal/metrics"
	"github.com/hamed0406/resymon/internal/notify"
	"github.com/hamed0406/resymon/internal/resy"
)

// ReservationAPI is the part of the Resy client the checker needs.
type ReservationAPI interface {
	Calendar(ctx context.Context, venueID string, seats int, start, end string) (resy.Calendar, error)
	Find(ctx context.Context, venueID string, seats int, day string) (resy.FindResult, error)
}

// Availability checks a monitor against the reservation calendar and slot
// search, notifies on matches and records the outcome on the monitor.
type Availability struct {
	Logger   *zap.Logger
	API      ReservationAPI
	Notifier notify.Notifier // may be nil
	Metrics  metrics.Recorder
	Now      func() time.Time
}

func NewAvailability(logger *zap.Logger, api ReservationAPI, n notify.Notifier, rec metrics.Recorder) *Availability {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Availability{Logger: logger, API: api, Notifier: n, Metrics: rec, Now: time.Now}
}

// Check never returns an error: failures are written into the monitor.
func (a *Availability) Check(ctx context.Context, m *domain.Monitor) error {
	defer func() { m.MarkChecked(a.Now()) }()

	matches, err := a.search(ctx, m)
	if err != nil {
		m.Status = domain.StatusError
		var re *resy.Error
		if errors.As(err, &re) {
			m.StatusMsg = strings.TrimSpace("API error " + statusText(re.StatusCode))
			m.Error = re.Detail
			if m.Error == "" {
				m.Error = re.Error()
			}
		} else {
			m.StatusMsg = "Unexpected error"
			m.Error = err.Error()
		}
		a.Logger.Warn("check_failed",
			zap.String("monitor_id", string(m.ID)),
			zap.String("venue_id", m.VenueID),
			zap.Error(err),
		)
		return nil
	}

	m.Error = ""
	if matches == nil {
		m.Status = domain.StatusNone
		m.StatusMsg = "Nothing available (calendar)"
		m.FoundSlots = []domain.Slot{}
		return nil
	}
	if len(matches) == 0 {
		m.Status = domain.StatusNone
		m.StatusMsg = "Nothing available for selected times"
		m.FoundSlots = []domain.Slot{}
		return nil
	}

	a.notify(ctx, m, matches)
	m.Status = domain.StatusFound
	m.StatusMsg = "Found reservations!"
	m.FoundSlots = matches
	if m.StopOnMatch {
		m.Active = false
	}
	a.Logger.Info("check_found",
		zap.String("monitor_id", string(m.ID)),
		zap.String("venue_name", m.VenueName),
		zap.Int("matches", len(matches)),
	)
	return nil
}

// search returns nil when the calendar shows no open dates and an empty,
// non-nil slice when open dates had no slot at a time of interest.
func (a *Availability) search(ctx context.Context, m *domain.Monitor) ([]domain.Slot, error) {
	start, end := domain.FormatDate(m.StartDate), domain.FormatDate(m.EndDate)
	a.Logger.Debug("resy_calendar",
		zap.String("venue_id", m.VenueID),
		zap.Int("num_seats", m.PartySize),
		zap.String("start_date", start),
		zap.String("end_date", end),
	)
	cal, err := a.API.Calendar(ctx, m.VenueID, m.PartySize, start, end)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	dates := cal.AvailableDates()
	if len(dates) == 0 {
		return nil, nil
	}

	wanted := make(map[string]bool, len(m.Times))
	for _, t := range m.Times {
		wanted[t] = true
	}

	matches := []domain.Slot{}
	for _, day := range dates {
		a.Logger.Debug("resy_find", zap.String("venue_id", m.VenueID), zap.String("day", day))
		res, err := a.API.Find(ctx, m.VenueID, m.PartySize, day)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("find %s: %w", day, err)
			}
			// one bad day does not spoil the others
			a.Logger.Debug("resy_find_skipped", zap.String("day", day), zap.Error(err))
			continue
		}
		if len(res.Results.Venues) == 0 {
			continue
		}
		v := res.Results.Venues[0]
		for _, s := range v.Slots {
			hhmm := s.HHMM()
			if !wanted[hhmm] {
				continue
			}
			typ := s.Config.Type
			if typ == "" {
				typ = "reservation"
			}
			matches = append(matches, domain.Slot{
				Date:       day,
				Time24:     hhmm,
				Type:       typ,
				TimeFilter: s.Config.TimeFilter,
				Image:      v.Image(),
			})
		}
	}
	return matches, nil
}

// notify applies the webhook policy: with OnlyOneWebhook a single message
// is attempted once for the monitor's lifetime, whatever the delivery
// outcome, otherwise one per match on every check that finds matches.
func (a *Availability) notify(ctx context.Context, m *domain.Monitor, matches []domain.Slot) {
	if a.Notifier == nil {
		return
	}
	if m.OnlyOneWebhook {
		if m.WebhookSent {
			return
		}
		first := matches[0]
		typ := first.Type
		if len(matches) > 1 {
			typ = fmt.Sprintf("multiple (%d)", len(matches))
		}
		// a partial fan-out failure must not resend to targets that already got it
		a.send(ctx, m, first, typ)
		m.WebhookSent = true
		return
	}
	for _, s := range matches {
		a.send(ctx, m, s, s.Type)
	}
}

func (a *Availability) send(ctx context.Context, m *domain.Monitor, s domain.Slot, typ string) {
	msg := notify.Message{
		Title:     m.VenueName,
		URL:       m.URL,
		Thumbnail: s.Image,
		Fields: []notify.Field{
			{Name: "Date:", Value: s.Date},
			{Name: "Time:", Value: domain.To12h(s.Time24)},
			{Name: "Party Size:", Value: strconv.Itoa(m.PartySize)},
			{Name: "Type:", Value: typ},
			{Name: "Link:", Value: m.URL},
		},
	}
	if err := a.Notifier.Send(ctx, msg); err != nil {
		a.Metrics.RecordNotification(false)
		a.Logger.Warn("notify_failed",
			zap.String("monitor_id", string(m.ID)),
			zap.String("date", s.Date),
			zap.String("time", s.Time24),
			zap.Error(err),
		)
		return
	}
	a.Metrics.RecordNotification(true)
}

func statusText(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
