package hamster

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/ledger"
)

// hamster serializes datetimes without zone, in local time.
const timeLayout = "2006-01-02 15:04"

var parseLayouts = []string{
	"2006-01-02 15:04:05",
	timeLayout,
	time.RFC3339,
}

// fact is the JSON shape of a Hamster fact on the bus. Fields we don't
// interpret are kept so that an update round-trips them untouched.
type fact struct {
	ID          int64    `json:"id"`
	Activity    string   `json:"activity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ActivityID  *int64   `json:"activity_id,omitempty"`
	Exported    bool     `json:"exported"`
	Range       struct {
		Start *string `json:"start"`
		End   *string `json:"end"`
	} `json:"range"`
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time %q", s)
}

func formatTime(t time.Time) *string {
	s := t.In(time.Local).Format(timeLayout)
	return &s
}

func decodeFact(raw string) (*fact, error) {
	var f fact
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, errors.Wrap(ledger.ErrRejected, "malformed fact: "+err.Error())
	}
	return &f, nil
}

func (f *fact) encode() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode fact")
	}
	return string(b), nil
}

// entry converts the fact into a validated ledger entry.
func (f *fact) entry() (*ledger.Entry, error) {
	e := &ledger.Entry{
		ID:       f.ID,
		Category: f.Category,
		Activity: f.Activity,
	}

	if f.Range.Start == nil {
		return nil, errors.Wrapf(ledger.ErrRejected, "fact %d has no start", f.ID)
	}
	start, err := parseTime(*f.Range.Start)
	if err != nil {
		return nil, errors.Wrapf(ledger.ErrRejected, "fact %d: %v", f.ID, err)
	}
	e.Start = start

	if f.Range.End != nil && *f.Range.End != "" {
		end, err := parseTime(*f.Range.End)
		if err != nil {
			return nil, errors.Wrapf(ledger.ErrRejected, "fact %d: %v", f.ID, err)
		}
		e.End = &end
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
