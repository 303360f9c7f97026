package model

// OrbitClass is a coarse orbit category for a satellite.
type OrbitClass string

const (
	OrbitLEO OrbitClass = "LEO"
	OrbitMEO OrbitClass = "MEO"
	OrbitGEO OrbitClass = "GEO"
	OrbitHEO OrbitClass = "HEO"
)

// Satellite is a read-only snapshot of a collecting satellite.
type Satellite struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Function    string     `json:"function" yaml:"function"`
	Orbit       OrbitClass `json:"orbit" yaml:"orbit"`
	Capacity    int        `json:"capacity" yaml:"capacity"`
	CurrentLoad int        `json:"currentLoad" yaml:"currentLoad"`

	// Optional two-line element set; only orbital latency scoring uses it.
	TLE1 string `json:"tle1,omitempty" yaml:"tle1,omitempty"`
	TLE2 string `json:"tle2,omitempty" yaml:"tle2,omitempty"`
}

// Need returns the satellite's unmet demand. It may be zero or negative when
// the satellite is already fully loaded.
func (s Satellite) Need() int {
	return s.Capacity - s.CurrentLoad
}

// HasTLE reports whether both element lines are present.
func (s Satellite) HasTLE() bool {
	return s.TLE1 != "" && s.TLE2 != ""
}
