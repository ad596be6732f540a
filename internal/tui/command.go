package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/helpline/internal/geo"
)

// Command represents a parsed command line.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
}

// parsePoint reads "lat,lon" or "lat lon".
func parsePoint(s string) (geo.Point, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 2 {
		return geo.Point{}, fmt.Errorf("want <lat>,<lon>, got %q", s)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("longitude: %w", err)
	}
	p := geo.Point{Latitude: lat, Longitude: lon}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("%s is out of range", p)
	}
	return p, nil
}
