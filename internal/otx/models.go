package otx

import (
	"encoding/json"
	"fmt"
	"time"
)

// Pulse is one unit of threat intelligence from the OTX feed.
type Pulse struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	AuthorName        string      `json:"author_name"`
	Created           time.Time   `json:"created"`
	Modified          time.Time   `json:"modified"`
	Revision          int         `json:"revision"`
	TLP               string      `json:"TLP"`
	Public            int         `json:"public"`
	Adversary         string      `json:"adversary"`
	Tags              []string    `json:"tags"`
	TargetedCountries []string    `json:"targeted_countries"`
	MalwareFamilies   []string    `json:"malware_families"`
	AttackIDs         []string    `json:"attack_ids"`
	Industries        []string    `json:"industries"`
	References        []string    `json:"references"`
	Indicators        []Indicator `json:"indicators"`
}

// Indicator is a single IOC inside a pulse.
type Indicator struct {
	ID          int64     `json:"id"`
	Value       string    `json:"indicator"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Created     time.Time `json:"created"`
	Expiration  string    `json:"expiration"`
	IsActive    int       `json:"is_active"`
	Role        string    `json:"role"`
}

// Active reports whether the feed still considers this indicator live.
func (i Indicator) Active() bool {
	return i.IsActive != 0
}

// feedTimeLayouts covers the wire formats the feed emits: RFC 3339 and a
// zoneless microsecond form, read as UTC.
var feedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseFeedTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized feed timestamp %q", raw)
}

// UnmarshalJSON decodes a pulse, accepting both timestamp wire formats.
func (p *Pulse) UnmarshalJSON(data []byte) error {
	type pulseAlias Pulse
	aux := struct {
		Created  string `json:"created"`
		Modified string `json:"modified"`
		*pulseAlias
	}{pulseAlias: (*pulseAlias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if p.Created, err = parseFeedTime(aux.Created); err != nil {
		return fmt.Errorf("pulse created: %w", err)
	}
	if p.Modified, err = parseFeedTime(aux.Modified); err != nil {
		return fmt.Errorf("pulse modified: %w", err)
	}
	return nil
}

// UnmarshalJSON decodes an indicator, accepting both timestamp wire formats.
func (i *Indicator) UnmarshalJSON(data []byte) error {
	type indicatorAlias Indicator
	aux := struct {
		Created string `json:"created"`
		*indicatorAlias
	}{indicatorAlias: (*indicatorAlias)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if i.Created, err = parseFeedTime(aux.Created); err != nil {
		return fmt.Errorf("indicator created: %w", err)
	}
	return nil
}

// pulsePage is one page of the subscribed-pulses listing.
type pulsePage struct {
	Count    int     `json:"count"`
	Next     string  `json:"next"`
	Previous string  `json:"previous"`
	Results  []Pulse `json:"results"`
}

// User is the authenticated OTX account, used for health checks.
type User struct {
	Username string `json:"username"`
	MemberID int64  `json:"member_id"`
}
