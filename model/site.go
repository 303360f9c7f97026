package model

// Location is a geographic position in degrees.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Site is a ground station with a finite number of passes it can handle.
// Allocated may exceed Capacity; over-allocation is reported, not rejected.
type Site struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Location  Location `json:"location" yaml:"location"`
	Capacity  int      `json:"capacity" yaml:"capacity"`
	Allocated int      `json:"allocated" yaml:"allocated"`
}

// Remaining returns the unallocated capacity, clamped at zero so an
// over-allocated site never offsets availability elsewhere.
func (s Site) Remaining() int {
	if rem := s.Capacity - s.Allocated; rem > 0 {
		return rem
	}
	return 0
}

// OverAllocated reports whether more passes are allocated than the site holds.
func (s Site) OverAllocated() bool {
	return s.Allocated > s.Capacity
}

// Utilization returns allocated/capacity as a percentage. A site without
// capacity is treated as fully used.
func (s Site) Utilization() float64 {
	if s.Capacity <= 0 {
		return 100
	}
	return float64(s.Allocated) / float64(s.Capacity) * 100
}

// SiteIDs returns the identifiers of the given sites in order.
func SiteIDs(sites []Site) []string {
	ids := make([]string, 0, len(sites))
	for _, s := range sites {
		ids = append(ids, s.ID)
	}
	return ids
}
