package resy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidVenueURL = errors.New("URL does not look like a valid Resy venue URL")

var venueURLRe = regexp.MustCompile(`(?i)^https?://(www\.)?resy\.com/cities/([^/]+)/venues/([^/?#]+)`)

// ParseVenueURL extracts the city and venue slugs from a venue page URL such
// as https://resy.com/cities/toronto-on/venues/casa-paco.
func ParseVenueURL(raw string) (city, venue string, err error) {
	raw = strings.TrimSpace(raw)
	if m := venueURLRe.FindStringSubmatch(raw); m != nil {
		return m[2], m[3], nil
	}
	u, perr := url.Parse(raw)
	if perr != nil {
		return "", "", ErrInvalidVenueURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 4 && parts[0] == "cities" && parts[2] == "venues" && parts[1] != "" && parts[3] != "" {
		return parts[1], parts[3], nil
	}
	return "", "", ErrInvalidVenueURL
}

type Venue struct {
	ID   string
	Name string
}

// LookupVenue resolves a venue slug to its numeric id and display name.
func (c *Client) LookupVenue(ctx context.Context, city, slug string) (Venue, error) {
	var raw struct {
		ID struct {
			Resy json.Number `json:"resy"`
		} `json:"id"`
		Name string `json:"name"`
	}
	q := url.Values{"url_slug": {slug}, "location": {city}}
	if err := c.do(ctx, http.MethodGet, "/3/venue", q, nil, &raw); err != nil {
		return Venue{}, err
	}
	if raw.ID.Resy == "" {
		return Venue{}, &Error{Message: "Venue lookup did not return an id"}
	}
	return Venue{ID: raw.ID.Resy.String(), Name: raw.Name}, nil
}

type CalendarDay struct {
	Date      string `json:"date"`
	Inventory struct {
		Reservation string `json:"reservation"`
	} `json:"inventory"`
}

type Calendar struct {
	Scheduled []CalendarDay `json:"scheduled"`
}

// AvailableDates lists the days whose reservation inventory is "available".
func (c Calendar) AvailableDates() []string {
	var out []string
	for _, d := range c.Scheduled {
		if d.Inventory.Reservation == "available" {
			out = append(out, d.Date)
		}
	}
	return out
}

// Calendar fetches day-level availability for an inclusive date range.
func (c *Client) Calendar(ctx context.Context, venueID string, seats int, start, end string) (Calendar, error) {
	q := url.Values{
		"venue_id":   {venueID},
		"num_seats":  {strconv.Itoa(seats)},
		"start_date": {start},
		"end_date":   {end},
	}
	var cal Calendar
	err := c.do(ctx, http.MethodGet, "/4/venue/calendar", q, nil, &cal)
	return cal, err
}

type Slot struct {
	Date struct {
		Start string `json:"start"` // "YYYY-MM-DD HH:MM:SS"
	} `json:"date"`
	Config struct {
		Type       string `json:"type"`
		TimeFilter string `json:"time_filter"`
	} `json:"config"`
}

// HHMM returns the slot's start time as HH:MM, or "" when unparseable.
func (s Slot) HHMM() string {
	parts := strings.SplitN(s.Date.Start, " ", 2)
	if len(parts) != 2 || len(parts[1]) < 5 {
		return ""
	}
	return parts[1][:5]
}

type FindVenue struct {
	Venue struct {
		DefaultTemplate string `json:"default_template"`
	} `json:"venue"`
	Templates map[string]struct {
		Images []string `json:"images"`
	} `json:"templates"`
	Slots []Slot `json:"slots"`
}

// Image is the first image of the venue's default template, if any.
func (v FindVenue) Image() string {
	t, ok := v.Templates[v.Venue.DefaultTemplate]
	if !ok || len(t.Images) == 0 {
		return ""
	}
	return t.Images[0]
}

type FindResult struct {
	Results struct {
		Venues []FindVenue `json:"venues"`
	} `json:"results"`
}

type findRequest struct {
	Day       string `json:"day"`
	Lat       int    `json:"lat"`
	Long      int    `json:"long"`
	PartySize int    `json:"party_size"`
	VenueID   string `json:"venue_id"`
}

// Find lists bookable slots for one day.
func (c *Client) Find(ctx context.Context, venueID string, seats int, day string) (FindResult, error) {
	var res FindResult
	err := c.do(ctx, http.MethodPost, "/4/find", nil, findRequest{Day: day, PartySize: seats, VenueID: venueID}, &res)
	return res, err
}
