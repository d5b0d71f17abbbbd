package ships

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Spacing controls how close two ships of the same player may be placed.
type Spacing uint8

const (
	// SpacingCornersAllowed lets ships touch diagonally but not along an edge.
	SpacingCornersAllowed Spacing = iota
	// SpacingNoCorners keeps at least one free cell around every ship.
	SpacingNoCorners
	// SpacingNone only forbids overlapping ships.
	SpacingNone
)

var spacingNames = map[Spacing]string{
	SpacingCornersAllowed: "cornersok",
	SpacingNoCorners:      "nocorners",
	SpacingNone:           "none",
}

func (s Spacing) String() string {
	if name, ok := spacingNames[s]; ok {
		return name
	}
	return "unknown"
}

func ParseSpacing(name string) (Spacing, error) {
	for s, n := range spacingNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown spacing %q", name)
}

func (s Spacing) MarshalText() ([]byte, error) {
	if _, ok := spacingNames[s]; !ok {
		return nil, fmt.Errorf("unknown spacing %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Spacing) UnmarshalText(b []byte) error {
	v, err := ParseSpacing(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Template is a named preset ship length.
type Template uint8

const (
	NoTemplate Template = iota
	Carrier
	Battleship
	Destroyer
	Submarine
	Boat
)

var templates = []struct {
	t      Template
	name   string
	length int
}{
	{Carrier, "carrier", 5},
	{Battleship, "battleship", 4},
	{Destroyer, "destroyer", 3},
	{Submarine, "submarine", 3},
	{Boat, "boat", 2},
}

func ParseTemplate(name string) (Template, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, tpl := range templates {
		if tpl.name == name {
			return tpl.t, nil
		}
	}
	return NoTemplate, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
}

func (t Template) Length() int {
	for _, tpl := range templates {
		if tpl.t == t {
			return tpl.length
		}
	}
	return 0
}

func (t Template) String() string {
	for _, tpl := range templates {
		if tpl.t == t {
			return tpl.name
		}
	}
	return ""
}

// DefaultFleet is the roster every player gets unless configured otherwise.
var DefaultFleet = []Size{{1, 5}, {1, 4}, {1, 3}, {1, 3}, {1, 2}}

// Rules fixes the board shape, spacing policy and roster of one match.
type Rules struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Spacing        Spacing `json:"spacing"`
	Fleet          []Size  `json:"fleet"`
	StartingPlayer int     `json:"starting_player"`
}

func DefaultRules() Rules {
	return Rules{
		Width:   10,
		Height:  10,
		Spacing: SpacingCornersAllowed,
		Fleet:   append([]Size(nil), DefaultFleet...),
	}
}

func (r Rules) Validate() error {
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("board must be at least 1x1, got %dx%d", r.Width, r.Height)
	}
	if _, ok := spacingNames[r.Spacing]; !ok {
		return fmt.Errorf("unknown spacing %d", r.Spacing)
	}
	if len(r.Fleet) == 0 {
		return errors.New("fleet is empty")
	}
	area := 0
	for _, s := range r.Fleet {
		if !s.Valid() {
			return fmt.Errorf("fleet entry %s: %w", s, ErrBadSize)
		}
		fits := s.W <= r.Width && s.H <= r.Height
		rotated := s.H <= r.Width && s.W <= r.Height
		if !fits && !rotated {
			return fmt.Errorf("fleet entry %s does not fit a %dx%d board", s, r.Width, r.Height)
		}
		area += s.Area()
	}
	if area > r.Width*r.Height {
		return fmt.Errorf("fleet covers %d cells, board has %d", area, r.Width*r.Height)
	}
	if r.StartingPlayer != 0 && r.StartingPlayer != 1 {
		return fmt.Errorf("starting player must be 0 or 1, got %d", r.StartingPlayer)
	}
	return nil
}

// ParseFleet reads a roster like "5,4,3,3,2" or "4,3,2x2". A bare number n
// is a straight ship (1,n), WxH is an explicit rectangle.
func ParseFleet(spec string) ([]Size, error) {
	var fleet []Size
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if w, h, ok := strings.Cut(strings.ToLower(part), "x"); ok {
			width, err := strconv.Atoi(w)
			if err != nil {
				return nil, fmt.Errorf("fleet entry %q: %w", part, err)
			}
			height, err := strconv.Atoi(h)
			if err != nil {
				return nil, fmt.Errorf("fleet entry %q: %w", part, err)
			}
			fleet = append(fleet, Size{W: width, H: height})
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("fleet entry %q: %w", part, err)
		}
		fleet = append(fleet, Size{W: 1, H: n})
	}
	if len(fleet) == 0 {
		return nil, errors.New("fleet is empty")
	}
	for _, s := range fleet {
		if !s.Valid() {
			return nil, fmt.Errorf("fleet entry %s: %w", s, ErrBadSize)
		}
	}
	return fleet, nil
}
