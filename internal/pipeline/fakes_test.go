package pipeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/automation"
	"github.com/sells-group/leadscout/internal/contact"
	"github.com/sells-group/leadscout/internal/discovery"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

// --- Store fake ---

type fakeStore struct {
	mu       sync.Mutex
	searches map[string]*model.SearchRequest
	leads    map[string]*model.Lead
	history  map[string][]int

	insertErr   error
	listErr     error
	updateLead  func(id string, p model.LeadPatch) error
	progressErr error
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		searches: make(map[string]*model.SearchRequest),
		leads:    make(map[string]*model.Lead),
		history:  make(map[string][]int),
	}
}

func (f *fakeStore) CreateSearch(_ context.Context, s *model.SearchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = model.SearchStatusProcessing
	s.Progress = 0
	cp := *s
	f.searches[s.ID] = &cp
	return nil
}

func (f *fakeStore) GetSearch(_ context.Context, id string) (*model.SearchRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.searches[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "search %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListSearches(_ context.Context, _ store.SearchFilter) ([]model.SearchRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SearchRequest
	for _, s := range f.searches {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeStore) processing(id string) (*model.SearchRequest, error) {
	s, ok := f.searches[id]
	if !ok || s.Status != model.SearchStatusProcessing {
		return nil, eris.Wrapf(store.ErrNotFound, "search %s", id)
	}
	return s, nil
}

func (f *fakeStore) UpdateSearchProgress(_ context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	s, err := f.processing(id)
	if err != nil {
		return nil
	}
	if progress > s.Progress {
		s.Progress = progress
		f.history[id] = append(f.history[id], progress)
	}
	return nil
}

func (f *fakeStore) SetResultCount(_ context.Context, id string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.processing(id)
	if err != nil {
		return err
	}
	s.ResultCount = count
	return nil
}

func (f *fakeStore) CompleteSearch(_ context.Context, id string, resultCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.processing(id)
	if err != nil {
		return err
	}
	s.Status = model.SearchStatusCompleted
	s.Progress = 100
	s.ResultCount = resultCount
	f.history[id] = append(f.history[id], 100)
	return nil
}

func (f *fakeStore) FailSearch(_ context.Context, id string, errMsg string, resetProgress bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.processing(id)
	if err != nil {
		return err
	}
	s.Status = model.SearchStatusFailed
	s.Error = errMsg
	if resetProgress {
		s.Progress = 0
	}
	return nil
}

func (f *fakeStore) InsertLeads(_ context.Context, leads []model.Lead) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	var n int64
	for _, l := range leads {
		dup := false
		for _, existing := range f.leads {
			if existing.SearchID == l.SearchID && existing.PlaceID == l.PlaceID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		cp := l
		f.leads[l.ID] = &cp
		n++
	}
	return n, nil
}

func (f *fakeStore) UpdateLead(_ context.Context, id string, p model.LeadPatch) error {
	if f.updateLead != nil {
		if err := f.updateLead(id, p); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	p.Apply(l)
	return nil
}

func (f *fakeStore) GetLead(_ context.Context, id string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetLeads(_ context.Context, ids []string) ([]model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Lead
	for _, id := range ids {
		if l, ok := f.leads[id]; ok {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) ListLeads(_ context.Context, searchID string) ([]model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Lead
	for _, l := range f.leads {
		if l.SearchID == searchID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out, nil
}

func (f *fakeStore) GetCachedDetection(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeStore) SetCachedDetection(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (f *fakeStore) DeleteExpiredDetections(context.Context) (int, error) { return 0, nil }
func (f *fakeStore) Ping(context.Context) error                          { return nil }
func (f *fakeStore) Migrate(context.Context) error                       { return nil }
func (f *fakeStore) Close() error                                        { return nil }

func (f *fakeStore) progressHistory(id string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.history[id]...)
}

func (f *fakeStore) leadByPlace(searchID, placeID string) *model.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.SearchID == searchID && l.PlaceID == placeID {
			cp := *l
			return &cp
		}
	}
	return nil
}

// --- Enrichment fakes ---

type fakeDiscoverer struct {
	records []model.BusinessRecord
	err     error
	calls   atomic.Int32
	lastQ   discovery.Query
}

func (d *fakeDiscoverer) Discover(_ context.Context, q discovery.Query) ([]model.BusinessRecord, error) {
	d.calls.Add(1)
	d.lastQ = q
	return d.records, d.err
}

type fakeEmailFinder struct {
	mu      sync.Mutex
	results map[string]contact.Result
	domains []string
}

func (e *fakeEmailFinder) FindEmail(_ context.Context, domain string) contact.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.domains = append(e.domains, domain)
	if r, ok := e.results[domain]; ok {
		return r
	}
	return contact.Result{Outcome: contact.OutcomeAbsent, Reason: contact.ReasonNotFound}
}

type fakeDetector struct {
	mu       sync.Mutex
	results  map[string]automation.Result
	panicOn  string
	websites []string
}

func (d *fakeDetector) DetectCached(_ context.Context, website string) automation.Result {
	d.mu.Lock()
	d.websites = append(d.websites, website)
	d.mu.Unlock()
	if website == d.panicOn {
		panic("scanner blew up")
	}
	if r, ok := d.results[website]; ok {
		return r
	}
	return automation.Result{Tools: []string{}, Reachable: true}
}
