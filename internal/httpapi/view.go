package httpapi

import (
	"time"

	"github.com/hamed0406/resymon/internal/domain"
)

// monitorView is the read model served to clients: the snapshot plus
// display fields derived from it.
type monitorView struct {
	domain.Monitor
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Times12     []string   `json:"times_12"`
	StatusLabel string     `json:"status_label"`
	NextCheckIn string     `json:"next_check_in,omitempty"` // empty while paused
	NextCheckAt *time.Time `json:"next_check_at,omitempty"`
}

func (s *Server) view(m domain.Monitor) monitorView {
	v := monitorView{
		Monitor:     m,
		StartDate:   domain.FormatDate(m.StartDate),
		EndDate:     domain.FormatDate(m.EndDate),
		Times12:     make([]string, 0, len(m.Times)),
		StatusLabel: statusLabel(m.Status),
	}
	if v.FoundSlots == nil {
		v.FoundSlots = []domain.Slot{}
	}
	for _, t := range m.Times {
		v.Times12 = append(v.Times12, domain.To12h(t))
	}
	if m.Active {
		interval := s.Engine.Interval()
		v.NextCheckIn = domain.FormatETA(m.NextCheckIn(s.Now(), interval))
		if m.LastChecked != nil {
			at := m.LastChecked.Add(interval)
			v.NextCheckAt = &at
		}
	}
	return v
}

func statusLabel(st domain.Status) string {
	switch st {
	case domain.StatusFound:
		return "Found"
	case domain.StatusNone:
		return "None"
	case domain.StatusError:
		return "Error"
	default:
		return "Polling"
	}
}
