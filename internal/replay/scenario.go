package replay

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/spikely/platform/internal/errors"
)

// Scenario is a scripted stream: transcript lines and viewer counts at offsets from Start.
type Scenario struct {
	Name     string    `yaml:"name"`
	Start    time.Time `yaml:"start"`
	MinDelta int       `yaml:"minDelta"`
	Events   []Event   `yaml:"events"`
}

// Event is either a transcript line (Text) or a viewer sample (Viewers). At is milliseconds from Start.
type Event struct {
	At      int64    `yaml:"at"`
	Text    string   `yaml:"text,omitempty"`
	Conf    *float64 `yaml:"conf,omitempty"`
	Viewers *int     `yaml:"viewers,omitempty"`
}

// IsViewer reports whether the event is a viewer sample.
func (e Event) IsViewer() bool { return e.Viewers != nil }

// Time returns the absolute event time.
func (s *Scenario) Time(e Event) time.Time {
	return s.Start.Add(time.Duration(e.At) * time.Millisecond)
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeNotFound, "open scenario %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a scenario. Events are stably ordered by offset.
func Parse(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "decode scenario")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.Start.IsZero() {
		s.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].At < s.Events[j].At })
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Events) == 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "scenario has no events")
	}
	if s.MinDelta < 0 {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "minDelta must be >= 0, got %d", s.MinDelta)
	}
	for i, e := range s.Events {
		if err := e.validate(); err != nil {
			return apperrors.Wrap(err, apperrors.CodeInvalidArgument, fmt.Sprintf("event %d", i))
		}
	}
	return nil
}

func (e Event) validate() error {
	switch {
	case e.At < 0:
		return fmt.Errorf("at must be >= 0, got %d", e.At)
	case e.Viewers != nil && e.Text != "":
		return fmt.Errorf("event sets both text and viewers")
	case e.Viewers == nil && e.Text == "":
		return fmt.Errorf("event needs text or viewers")
	case e.Viewers != nil && *e.Viewers < 0:
		return fmt.Errorf("viewers must be >= 0, got %d", *e.Viewers)
	case e.Conf != nil && (*e.Conf < 0 || *e.Conf > 1):
		return fmt.Errorf("conf must be within [0,1], got %v", *e.Conf)
	}
	return nil
}
