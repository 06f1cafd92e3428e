package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DayTemplate describes whether and when a doctor attends on one weekday.
type DayTemplate struct {
	Attends bool       `json:"attends" yaml:"attends"`
	Open    *TimeOfDay `json:"open,omitempty" yaml:"open,omitempty"`
	Close   *TimeOfDay `json:"close,omitempty" yaml:"close,omitempty"`
}

// Hours returns the office hours of an attending day. ok is false when the
// day is not attended or its hours are missing or inverted.
func (d DayTemplate) Hours() (open, close TimeOfDay, ok bool) {
	if !d.Attends || d.Open == nil || d.Close == nil || *d.Close <= *d.Open {
		return 0, 0, false
	}
	return *d.Open, *d.Close, true
}

// WeeklyTemplate holds exactly one DayTemplate per weekday, indexed by
// time.Weekday. On the wire it is an object keyed by weekday name; absent
// days decode as not attending.
type WeeklyTemplate [7]DayTemplate

// Attending builds an attending DayTemplate for the given hours.
func Attending(open, close TimeOfDay) DayTemplate {
	return DayTemplate{Attends: true, Open: &open, Close: &close}
}

func (w WeeklyTemplate) Day(d time.Weekday) DayTemplate { return w[d] }

func (w *WeeklyTemplate) Set(d time.Weekday, t DayTemplate) { w[d] = t }

func (w WeeklyTemplate) AttendsAny() bool {
	for _, d := range w {
		if d.Attends {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts full English weekday names and their three-letter forms.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return wd, nil
}

func weekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

func (w WeeklyTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.byName())
}

func (w *WeeklyTemplate) UnmarshalJSON(data []byte) error {
	var raw map[string]DayTemplate
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return w.fromNames(raw)
}

func (w WeeklyTemplate) MarshalYAML() (interface{}, error) {
	return w.byName(), nil
}

func (w *WeeklyTemplate) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]DayTemplate
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return w.fromNames(raw)
}

func (w WeeklyTemplate) byName() map[string]DayTemplate {
	out := make(map[string]DayTemplate, len(w))
	for i, d := range w {
		out[weekdayKey(time.Weekday(i))] = d
	}
	return out
}

func (w *WeeklyTemplate) fromNames(raw map[string]DayTemplate) error {
	var (
		out  WeeklyTemplate
		seen [7]bool
	)
	for name, day := range raw {
		wd, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		if seen[wd] {
			return fmt.Errorf("weekday %s given more than once", weekdayKey(wd))
		}
		seen[wd] = true
		out[wd] = day
	}
	*w = out
	return nil
}
