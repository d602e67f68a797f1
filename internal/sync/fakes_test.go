package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/ics"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// fakeFeed serves a fixed ICS body, or a fixed error.
type fakeFeed struct {
	body  []byte
	err   error
	calls int
}

func (f *fakeFeed) Fetch(_ context.Context, src ics.Source) (ics.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return ics.FetchResult{}, f.err
	}
	return ics.FetchResult{Source: src, Body: f.body}, nil
}

// fakeClient is an in-memory destination calendar. Failure hooks intercept
// single operations; without hooks it behaves like a compliant, initially
// empty calendar. All methods are safe for concurrent use.
type fakeClient struct {
	mu      gosync.Mutex
	nextID  int
	records map[string]model.Record
	calls   []string // completion order, e.g. "create evt-1"

	failList   func() error
	failInsert func(inst model.Instance) error
	failUpdate func(eventID string) error
	failDelete func(eventID string) error

	// listOverlap switches List to provider-style bounds, returning any
	// record overlapping the window instead of only starts inside it.
	listOverlap bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{records: make(map[string]model.Record)}
}

// seed places a record on the destination without going through Insert.
func (f *fakeClient) seed(rec model.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

func (f *fakeClient) snapshot() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeClient) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeClient) List(_ context.Context, _ string, w model.Window) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	if f.failList != nil {
		if err := f.failList(); err != nil {
			return nil, err
		}
	}
	var out []model.Record
	for _, r := range f.records {
		keep := w.Contains(r.Start)
		if f.listOverlap {
			keep = r.End.After(w.From) && r.Start.Before(w.To)
		}
		if keep {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeClient) Insert(_ context.Context, _ string, inst model.Instance, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		if err := f.failInsert(inst); err != nil {
			f.calls = append(f.calls, "create-failed "+inst.UID)
			return "", err
		}
	}
	f.nextID++
	id := fmt.Sprintf("dest-%d", f.nextID)
	f.records[id] = model.Record{
		ID:          id,
		Summary:     inst.Summary,
		Description: description,
		AllDay:      inst.AllDay,
		Start:       inst.Start,
		End:         inst.End,
	}
	f.calls = append(f.calls, "create "+inst.UID)
	return id, nil
}

func (f *fakeClient) Update(_ context.Context, _ string, eventID string, inst model.Instance, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		if err := f.failUpdate(eventID); err != nil {
			f.calls = append(f.calls, "update-failed "+eventID)
			return err
		}
	}
	rec, ok := f.records[eventID]
	if !ok {
		return WriteError("update", fmt.Errorf("no such event %q", eventID))
	}
	rec.Summary = inst.Summary
	rec.Description = description
	rec.AllDay = inst.AllDay
	rec.Start = inst.Start
	rec.End = inst.End
	f.records[eventID] = rec
	f.calls = append(f.calls, "update "+eventID)
	return nil
}

func (f *fakeClient) Delete(_ context.Context, _ string, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		if err := f.failDelete(eventID); err != nil {
			f.calls = append(f.calls, "delete-failed "+eventID)
			return err
		}
	}
	delete(f.records, eventID)
	f.calls = append(f.calls, "delete "+eventID)
	return nil
}

func factoryFor(c Client) ClientFactory {
	return func(context.Context) (Client, error) { return c, nil }
}
