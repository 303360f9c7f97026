package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/allocation-engine/model"
)

func seeded(t *testing.T) *KnowledgeBase {
	t.Helper()
	store := NewKnowledgeBase()
	for _, s := range []model.Site{
		{ID: "s1", Capacity: 100, Allocated: 20},
		{ID: "s2", Capacity: 50, Allocated: 50},
		{ID: "s3", Capacity: 10},
	} {
		if err := store.AddSite(s); err != nil {
			t.Fatalf("AddSite(%s) error: %v", s.ID, err)
		}
	}
	for _, sat := range []model.Satellite{
		{ID: "sat-a", Capacity: 100, CurrentLoad: 40},
		{ID: "sat-b", Capacity: 10},
	} {
		if err := store.AddSatellite(sat); err != nil {
			t.Fatalf("AddSatellite(%s) error: %v", sat.ID, err)
		}
	}
	return store
}

func TestAddAndGetOpportunity(t *testing.T) {
	store := seeded(t)
	opp := model.CollectionOpportunity{ID: "o1", Name: "first", Priority: model.PriorityHigh}
	if err := store.AddOpportunity(opp, "sat-a", []string{"s1", "s2"}); err != nil {
		t.Fatalf("AddOpportunity error: %v", err)
	}

	got, err := store.GetOpportunity("o1")
	if err != nil {
		t.Fatalf("GetOpportunity error: %v", err)
	}
	if got.Satellite.ID != "sat-a" || got.Satellite.CurrentLoad != 40 {
		t.Fatalf("embedded satellite = %+v, want sat-a from KB", got.Satellite)
	}
	if len(got.Sites) != 2 || got.Sites[1].Allocated != 50 {
		t.Fatalf("embedded sites = %+v", got.Sites)
	}
	if got.Capacity != 150 {
		t.Fatalf("Capacity = %d, want 150", got.Capacity)
	}
	want := 70.0 / 150.0 * 100
	if got.CapacityPercentage != want {
		t.Fatalf("CapacityPercentage = %v, want %v", got.CapacityPercentage, want)
	}
}

func TestSnapshotOpportunity(t *testing.T) {
	store := seeded(t)
	if err := store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", []string{"s1"}); err != nil {
		t.Fatalf("AddOpportunity error: %v", err)
	}
	snap := store.Snapshot()
	if err := store.UpdateSiteAllocation("s1", 90); err != nil {
		t.Fatalf("UpdateSiteAllocation error: %v", err)
	}

	got, err := snap.Opportunity("o1")
	if err != nil {
		t.Fatalf("Opportunity error: %v", err)
	}
	if got.Sites[0].Allocated != 20 {
		t.Fatalf("snapshot site allocated = %d, want 20 from before the edit", got.Sites[0].Allocated)
	}
	if _, err := snap.Opportunity("missing"); !errors.Is(err, ErrOpportunityNotFound) {
		t.Fatalf("missing opportunity error = %v, want ErrOpportunityNotFound", err)
	}
}

func TestAddOpportunityErrors(t *testing.T) {
	store := seeded(t)
	if err := store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", nil); err != nil {
		t.Fatalf("AddOpportunity error: %v", err)
	}

	tests := []struct {
		name    string
		opp     model.CollectionOpportunity
		sat     string
		sites   []string
		wantErr error
	}{
		{"duplicate", model.CollectionOpportunity{ID: "o1"}, "sat-a", nil, ErrDuplicateID},
		{"missing id", model.CollectionOpportunity{}, "sat-a", nil, ErrInvalidInventory},
		{"unknown satellite", model.CollectionOpportunity{ID: "o2"}, "nope", nil, ErrSatelliteNotFound},
		{"unknown site", model.CollectionOpportunity{ID: "o3"}, "sat-a", []string{"s1", "zz"}, ErrSiteNotFound},
		{"site twice", model.CollectionOpportunity{ID: "o4"}, "sat-a", []string{"s1", "s1"}, ErrDuplicateID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := store.AddOpportunity(tc.opp, tc.sat, tc.sites)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("AddOpportunity error = %v, want %v", err, tc.wantErr)
			}
		})
	}
	if n := len(store.ListOpportunities()); n != 1 {
		t.Fatalf("ListOpportunities len = %d, want 1 after failed adds", n)
	}
}

func TestAddSiteAndSatelliteDuplicate(t *testing.T) {
	store := seeded(t)
	if err := store.AddSite(model.Site{ID: "s1"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate AddSite error = %v", err)
	}
	if err := store.AddSatellite(model.Satellite{ID: "sat-a"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate AddSatellite error = %v", err)
	}
	if _, err := store.GetSite("missing"); !errors.Is(err, ErrSiteNotFound) {
		t.Fatalf("GetSite error = %v", err)
	}
	if _, err := store.GetSatellite("missing"); !errors.Is(err, ErrSatelliteNotFound) {
		t.Fatalf("GetSatellite error = %v", err)
	}
	if _, err := store.GetOpportunity("missing"); !errors.Is(err, ErrOpportunityNotFound) {
		t.Fatalf("GetOpportunity error = %v", err)
	}
}

func TestListOpportunitiesSortedCopies(t *testing.T) {
	store := seeded(t)
	for _, id := range []string{"o3", "o1", "o2"} {
		if err := store.AddOpportunity(model.CollectionOpportunity{ID: id, Conflicts: []string{"c"}}, "sat-a", []string{"s1"}); err != nil {
			t.Fatalf("AddOpportunity(%s) error: %v", id, err)
		}
	}
	list := store.ListOpportunities()
	for i, want := range []string{"o1", "o2", "o3"} {
		if list[i].ID != want {
			t.Fatalf("list[%d] = %s, want %s", i, list[i].ID, want)
		}
	}

	list[0].Sites[0].Allocated = 999
	list[0].Conflicts[0] = "mutated"
	again, _ := store.GetOpportunity("o1")
	if again.Sites[0].Allocated != 20 || again.Conflicts[0] != "c" {
		t.Fatalf("stored opportunity changed through a listed copy: %+v", again)
	}
}

func TestOperatorEdits(t *testing.T) {
	store := seeded(t)
	if err := store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", []string{"s1"}); err != nil {
		t.Fatalf("AddOpportunity error: %v", err)
	}

	if err := store.AssignSites("o1", []string{"s2", "s3"}); err != nil {
		t.Fatalf("AssignSites error: %v", err)
	}
	got, _ := store.GetOpportunity("o1")
	if ids := model.SiteIDs(got.Sites); len(ids) != 2 || ids[0] != "s2" || ids[1] != "s3" {
		t.Fatalf("sites after AssignSites = %v", ids)
	}
	if got.Capacity != 60 {
		t.Fatalf("Capacity after AssignSites = %d, want 60", got.Capacity)
	}

	if err := store.AssignSites("o1", []string{"missing"}); !errors.Is(err, ErrSiteNotFound) {
		t.Fatalf("AssignSites unknown site error = %v", err)
	}
	got, _ = store.GetOpportunity("o1")
	if len(got.Sites) != 2 {
		t.Fatalf("failed AssignSites modified the opportunity: %+v", got.Sites)
	}

	if err := store.SetPriority("o1", model.PriorityCritical); err != nil {
		t.Fatalf("SetPriority error: %v", err)
	}
	if err := store.SetPriority("o1", "urgent"); !errors.Is(err, ErrInvalidInventory) {
		t.Fatalf("SetPriority unknown error = %v", err)
	}
	if err := store.SetConflicts("o1", []string{"overlap"}); err != nil {
		t.Fatalf("SetConflicts error: %v", err)
	}
	got, _ = store.GetOpportunity("o1")
	if got.Priority != model.PriorityCritical || len(got.Conflicts) != 1 {
		t.Fatalf("after edits = %+v", got)
	}
	if err := store.SetConflicts("o1", nil); err != nil {
		t.Fatalf("SetConflicts clear error: %v", err)
	}
	got, _ = store.GetOpportunity("o1")
	if got.Conflicts != nil {
		t.Fatalf("Conflicts = %v, want nil", got.Conflicts)
	}

	if err := store.SetPriority("missing", model.PriorityLow); !errors.Is(err, ErrOpportunityNotFound) {
		t.Fatalf("SetPriority missing error = %v", err)
	}
}

func TestUpdateSiteAllocationReembeds(t *testing.T) {
	store := seeded(t)
	_ = store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", []string{"s1", "s3"})
	_ = store.AddOpportunity(model.CollectionOpportunity{ID: "o2"}, "sat-b", []string{"s1"})
	_ = store.AddOpportunity(model.CollectionOpportunity{ID: "o3"}, "sat-b", []string{"s2"})

	var events []Event
	unsubscribe := store.Subscribe(func(e Event) { events = append(events, e) })
	defer unsubscribe()

	if err := store.UpdateSiteAllocation("s1", 90); err != nil {
		t.Fatalf("UpdateSiteAllocation error: %v", err)
	}
	for _, id := range []string{"o1", "o2"} {
		got, _ := store.GetOpportunity(id)
		if got.Sites[0].Allocated != 90 {
			t.Fatalf("%s site s1 allocated = %d, want 90", id, got.Sites[0].Allocated)
		}
	}
	o1, _ := store.GetOpportunity("o1")
	if want := 90.0 / 110.0 * 100; o1.CapacityPercentage != want {
		t.Fatalf("o1 CapacityPercentage = %v, want %v", o1.CapacityPercentage, want)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Type != EventSiteUpdated {
		t.Fatalf("event type = %v", e.Type)
	}
	if fmt.Sprint(e.Opportunities) != "[o1 o2]" || fmt.Sprint(e.SatelliteIDs) != "[sat-a sat-b]" {
		t.Fatalf("event = %+v", e)
	}

	if err := store.UpdateSiteAllocation("missing", 1); !errors.Is(err, ErrSiteNotFound) {
		t.Fatalf("UpdateSiteAllocation missing error = %v", err)
	}
}

func TestUpdateSatelliteLoad(t *testing.T) {
	store := seeded(t)
	_ = store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", []string{"s1"})
	if err := store.UpdateSatelliteLoad("sat-a", 95); err != nil {
		t.Fatalf("UpdateSatelliteLoad error: %v", err)
	}
	got, _ := store.GetOpportunity("o1")
	if got.Satellite.CurrentLoad != 95 {
		t.Fatalf("embedded CurrentLoad = %d, want 95", got.Satellite.CurrentLoad)
	}
	if ids := store.OpportunitiesOnSatellite("sat-a"); len(ids) != 1 || ids[0] != "o1" {
		t.Fatalf("OpportunitiesOnSatellite = %v", ids)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	store := seeded(t)
	var mu sync.Mutex
	var got []EventType
	unsubscribe := store.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
	})

	_ = store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", nil)
	_ = store.SetPriority("o1", model.PriorityLow)
	unsubscribe()
	_ = store.SetPriority("o1", model.PriorityHigh)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != EventOpportunityAdded || got[1] != EventOpportunityUpdated {
		t.Fatalf("events = %v, want [added updated]", got)
	}
}

func TestSubscriberMayReadKB(t *testing.T) {
	store := seeded(t)
	var seen model.CollectionOpportunity
	store.Subscribe(func(e Event) {
		seen, _ = store.GetOpportunity(e.Opportunities[0])
	})
	_ = store.AddOpportunity(model.CollectionOpportunity{ID: "o1"}, "sat-a", []string{"s1"})
	if seen.ID != "o1" {
		t.Fatalf("subscriber saw %+v", seen)
	}
}

func TestConcurrentEdits(t *testing.T) {
	store := seeded(t)
	for i := range 10 {
		id := fmt.Sprintf("o-%d", i)
		if err := store.AddOpportunity(model.CollectionOpportunity{ID: id}, "sat-a", []string{"s1"}); err != nil {
			t.Fatalf("AddOpportunity error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.UpdateSiteAllocation("s1", i)
			_ = store.SetPriority(fmt.Sprintf("o-%d", i), model.PriorityMedium)
			_ = store.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := store.Snapshot()
	if len(snap.Opportunities) != 10 || len(snap.Sites) != 3 || len(snap.Satellites) != 2 {
		t.Fatalf("snapshot sizes = %d/%d/%d", len(snap.Opportunities), len(snap.Sites), len(snap.Satellites))
	}
	final := snap.Sites[0].Allocated
	for _, o := range snap.Opportunities {
		if o.Sites[0].Allocated != final {
			t.Fatalf("opportunity %s embeds allocated %d, site has %d", o.ID, o.Sites[0].Allocated, final)
		}
	}
}
