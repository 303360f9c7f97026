package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/allocation-engine/model"
)

var (
	ErrOpportunityNotFound = errors.New("opportunity not found")
	ErrSiteNotFound        = errors.New("site not found")
	ErrSatelliteNotFound   = errors.New("satellite not found")
	ErrDuplicateID         = errors.New("duplicate id")
	ErrInvalidInventory    = errors.New("invalid inventory")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventOpportunityAdded EventType = iota
	EventOpportunityUpdated
	EventSiteUpdated
	EventSatelliteUpdated
)

func (t EventType) String() string {
	switch t {
	case EventOpportunityAdded:
		return "opportunity_added"
	case EventOpportunityUpdated:
		return "opportunity_updated"
	case EventSiteUpdated:
		return "site_updated"
	case EventSatelliteUpdated:
		return "satellite_updated"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers after a mutation. Opportunities lists the
// IDs whose embedded state changed; SatelliteIDs lists the satellites those
// opportunities belong to.
type Event struct {
	Type          EventType
	Opportunities []string
	SatelliteIDs  []string
}

// KnowledgeBase is an in-memory, thread-safe store for sites, satellites and
// collection opportunities.
//
// Opportunities embed their satellite and sites by value; the KB keeps those
// copies in sync whenever the inventory changes.
type KnowledgeBase struct {
	mu sync.RWMutex

	sites         map[string]model.Site
	satellites    map[string]model.Satellite
	opportunities map[string]*model.CollectionOpportunity

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		sites:         make(map[string]model.Site),
		satellites:    make(map[string]model.Satellite),
		opportunities: make(map[string]*model.CollectionOpportunity),
		subs:          make(map[int]func(Event)),
	}
}

// AddSite adds a ground site. It returns ErrDuplicateID if the ID exists.
func (kb *KnowledgeBase) AddSite(s model.Site) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if s.ID == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalidInventory)
	}
	if _, exists := kb.sites[s.ID]; exists {
		return fmt.Errorf("%w: site %q", ErrDuplicateID, s.ID)
	}
	kb.sites[s.ID] = s
	return nil
}

// AddSatellite adds a satellite. It returns ErrDuplicateID if the ID exists.
func (kb *KnowledgeBase) AddSatellite(sat model.Satellite) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if sat.ID == "" {
		return fmt.Errorf("%w: satellite id is required", ErrInvalidInventory)
	}
	if _, exists := kb.satellites[sat.ID]; exists {
		return fmt.Errorf("%w: satellite %q", ErrDuplicateID, sat.ID)
	}
	kb.satellites[sat.ID] = sat
	return nil
}

// AddOpportunity adds an opportunity referencing a known satellite and known
// sites by ID. The satellite and site values are embedded from the KB, not
// from opp.
func (kb *KnowledgeBase) AddOpportunity(opp model.CollectionOpportunity, satelliteID string, siteIDs []string) error {
	kb.mu.Lock()
	if opp.ID == "" {
		kb.mu.Unlock()
		return fmt.Errorf("%w: opportunity id is required", ErrInvalidInventory)
	}
	if _, exists := kb.opportunities[opp.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: opportunity %q", ErrDuplicateID, opp.ID)
	}
	sat, ok := kb.satellites[satelliteID]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q referenced by opportunity %q", ErrSatelliteNotFound, satelliteID, opp.ID)
	}
	sites, err := kb.resolveSitesLocked(siteIDs)
	if err != nil {
		kb.mu.Unlock()
		return fmt.Errorf("opportunity %q: %w", opp.ID, err)
	}

	stored := opp.Clone()
	stored.Satellite = sat
	stored.Sites = sites
	stored.RefreshCapacity()
	kb.opportunities[stored.ID] = &stored

	event := Event{
		Type:          EventOpportunityAdded,
		Opportunities: []string{stored.ID},
		SatelliteIDs:  []string{sat.ID},
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetOpportunity returns a deep copy of the opportunity with the given ID.
func (kb *KnowledgeBase) GetOpportunity(id string) (model.CollectionOpportunity, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	o, ok := kb.opportunities[id]
	if !ok {
		return model.CollectionOpportunity{}, fmt.Errorf("%w: %q", ErrOpportunityNotFound, id)
	}
	return o.Clone(), nil
}

// GetSite returns the site with the given ID.
func (kb *KnowledgeBase) GetSite(id string) (model.Site, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	s, ok := kb.sites[id]
	if !ok {
		return model.Site{}, fmt.Errorf("%w: %q", ErrSiteNotFound, id)
	}
	return s, nil
}

// GetSatellite returns the satellite with the given ID.
func (kb *KnowledgeBase) GetSatellite(id string) (model.Satellite, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	sat, ok := kb.satellites[id]
	if !ok {
		return model.Satellite{}, fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	return sat, nil
}

// ListOpportunities returns deep copies of all opportunities sorted by ID.
func (kb *KnowledgeBase) ListOpportunities() []model.CollectionOpportunity {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.listOpportunitiesLocked()
}

// ListSites returns all sites sorted by ID.
func (kb *KnowledgeBase) ListSites() []model.Site {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.listSitesLocked()
}

// ListSatellites returns all satellites sorted by ID.
func (kb *KnowledgeBase) ListSatellites() []model.Satellite {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Satellite, 0, len(kb.satellites))
	for _, sat := range kb.satellites {
		res = append(res, sat)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// OpportunitiesOnSatellite returns the IDs of opportunities owned by the
// given satellite, sorted.
func (kb *KnowledgeBase) OpportunitiesOnSatellite(satelliteID string) []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	var ids []string
	for id, o := range kb.opportunities {
		if o.Satellite.ID == satelliteID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot is a consistent copy of the whole inventory.
type Snapshot struct {
	Sites         []model.Site
	Satellites    []model.Satellite
	Opportunities []model.CollectionOpportunity
}

// Snapshot copies the inventory under a single read lock.
func (kb *KnowledgeBase) Snapshot() Snapshot {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	sats := make([]model.Satellite, 0, len(kb.satellites))
	for _, sat := range kb.satellites {
		sats = append(sats, sat)
	}
	sort.Slice(sats, func(i, j int) bool { return sats[i].ID < sats[j].ID })

	return Snapshot{
		Sites:         kb.listSitesLocked(),
		Satellites:    sats,
		Opportunities: kb.listOpportunitiesLocked(),
	}
}

// Opportunity returns the opportunity with the given ID as it was when the
// snapshot was taken.
func (s Snapshot) Opportunity(id string) (model.CollectionOpportunity, error) {
	for _, o := range s.Opportunities {
		if o.ID == id {
			return o, nil
		}
	}
	return model.CollectionOpportunity{}, fmt.Errorf("%w: %q", ErrOpportunityNotFound, id)
}

// AssignSites replaces the sites allocated to an opportunity.
func (kb *KnowledgeBase) AssignSites(id string, siteIDs []string) error {
	return kb.updateOpportunity(id, func(o *model.CollectionOpportunity) error {
		sites, err := kb.resolveSitesLocked(siteIDs)
		if err != nil {
			return err
		}
		o.Sites = sites
		return nil
	})
}

// SetPriority changes an opportunity's priority. Unknown priorities are
// rejected.
func (kb *KnowledgeBase) SetPriority(id string, p model.Priority) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInventory, p)
	}
	return kb.updateOpportunity(id, func(o *model.CollectionOpportunity) error {
		o.Priority = p
		return nil
	})
}

// SetConflicts replaces the conflict descriptions attached to an opportunity.
func (kb *KnowledgeBase) SetConflicts(id string, conflicts []string) error {
	return kb.updateOpportunity(id, func(o *model.CollectionOpportunity) error {
		if len(conflicts) == 0 {
			o.Conflicts = nil
			return nil
		}
		o.Conflicts = append([]string(nil), conflicts...)
		return nil
	})
}

// UpdateSiteAllocation sets a site's allocated pass count and re-embeds the
// site into every opportunity that uses it.
func (kb *KnowledgeBase) UpdateSiteAllocation(siteID string, allocated int) error {
	kb.mu.Lock()
	s, ok := kb.sites[siteID]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSiteNotFound, siteID)
	}
	s.Allocated = allocated
	kb.sites[siteID] = s

	var affected []string
	satSet := make(map[string]struct{})
	for id, o := range kb.opportunities {
		touched := false
		for i := range o.Sites {
			if o.Sites[i].ID == siteID {
				o.Sites[i] = s
				touched = true
			}
		}
		if touched {
			o.RefreshCapacity()
			affected = append(affected, id)
			satSet[o.Satellite.ID] = struct{}{}
		}
	}
	sort.Strings(affected)

	event := Event{
		Type:          EventSiteUpdated,
		Opportunities: affected,
		SatelliteIDs:  sortedKeys(satSet),
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// UpdateSatelliteLoad sets a satellite's current load and re-embeds it into
// every opportunity it owns.
func (kb *KnowledgeBase) UpdateSatelliteLoad(satelliteID string, load int) error {
	kb.mu.Lock()
	sat, ok := kb.satellites[satelliteID]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, satelliteID)
	}
	sat.CurrentLoad = load
	kb.satellites[satelliteID] = sat

	var affected []string
	for id, o := range kb.opportunities {
		if o.Satellite.ID == satelliteID {
			o.Satellite = sat
			affected = append(affected, id)
		}
	}
	sort.Strings(affected)

	event := Event{
		Type:          EventSatelliteUpdated,
		Opportunities: affected,
		SatelliteIDs:  []string{satelliteID},
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe
// function. Callbacks run on the mutating goroutine, outside the lock.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) updateOpportunity(id string, mutate func(*model.CollectionOpportunity) error) error {
	kb.mu.Lock()
	o, ok := kb.opportunities[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrOpportunityNotFound, id)
	}
	// Mutate a copy so a failed edit leaves the stored value untouched.
	next := o.Clone()
	if err := mutate(&next); err != nil {
		kb.mu.Unlock()
		return fmt.Errorf("opportunity %q: %w", id, err)
	}
	next.RefreshCapacity()
	*o = next

	event := Event{
		Type:          EventOpportunityUpdated,
		Opportunities: []string{id},
		SatelliteIDs:  []string{o.Satellite.ID},
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

func (kb *KnowledgeBase) resolveSitesLocked(ids []string) ([]model.Site, error) {
	sites := make([]model.Site, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: site %q assigned twice", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		s, ok := kb.sites[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSiteNotFound, id)
		}
		sites = append(sites, s)
	}
	return sites, nil
}

func (kb *KnowledgeBase) listOpportunitiesLocked() []model.CollectionOpportunity {
	res := make([]model.CollectionOpportunity, 0, len(kb.opportunities))
	for _, o := range kb.opportunities {
		res = append(res, o.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (kb *KnowledgeBase) listSitesLocked() []model.Site {
	res := make([]model.Site, 0, len(kb.sites))
	for _, s := range kb.sites {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}

// notify runs outside the lock so subscribers may call back into the KB.
func notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		sub(event)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
