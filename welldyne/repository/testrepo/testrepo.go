// package testrepo provides an in-memory repository.Repository used by unit
// tests in place of a live database.
package testrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maleexcel/welldyne-app/welldyne/models"
	"github.com/maleexcel/welldyne-app/welldyne/repository"
)

// Ensure Repository satisfies the interface
var _ repository.Repository = &Repository{}

type lease struct {
	holder    string
	expiresAt time.Time
}

type Repository struct {
	mu sync.Mutex

	nextID        uint
	Triggers      []*models.Trigger
	Eligibilities map[string]*models.Eligibility
	RxNumbers     map[string]*models.RxNumber
	Outbounds     []*models.Outbound
	NeverStarteds []*models.NeverStarted
	AdHocs        []*models.AdHoc
	FeedbackFiles []*models.FeedbackFile
	leases        map[string]lease

	// Now substitutes for the database clock.
	Now func() time.Time
}

func New() *Repository {
	return &Repository{
		nextID:        1,
		Eligibilities: map[string]*models.Eligibility{},
		RxNumbers:     map[string]*models.RxNumber{},
		leases:        map[string]lease{},
		Now:           time.Now,
	}
}

func (r *Repository) id() uint {
	id := r.nextID
	r.nextID++
	return id
}

func (r *Repository) GetPriorTrigger(_ context.Context, crmType, crmID, medication, excludeOrder string) (*models.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest(func(t *models.Trigger) bool {
		return t.CRMType == crmType && t.CRMID == crmID &&
			t.Medication == medication && t.CRMOrder != excludeOrder
	})
}

func (r *Repository) GetLatestTrigger(_ context.Context, crmType, crmID string) (*models.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest(func(t *models.Trigger) bool {
		return t.CRMType == crmType && t.CRMID == crmID
	})
}

func (r *Repository) latest(match func(*models.Trigger) bool) (*models.Trigger, error) {
	var found *models.Trigger
	for _, t := range r.Triggers {
		if !match(t) {
			continue
		}
		if found == nil || t.CreatedAt.After(found.CreatedAt) ||
			(t.CreatedAt.Equal(found.CreatedAt) && t.ID > found.ID) {
			found = t
		}
	}
	if found == nil {
		return nil, repository.ErrTriggerNotFound
	}
	copied := *found
	return &copied, nil
}

func (r *Repository) GetTriggerByID(_ context.Context, id uint) (*models.Trigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.Triggers {
		if t.ID == id {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrTriggerNotFound
}

func (r *Repository) UpsertTrigger(_ context.Context, trigger models.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	for _, t := range r.Triggers {
		if t.CRMType == trigger.CRMType && t.CRMID == trigger.CRMID &&
			t.CRMOrder == trigger.CRMOrder && t.Medication == trigger.Medication {
			t.RxID, t.RxNumber = trigger.RxID, trigger.RxNumber
			t.Type, t.Raw, t.AdhocType = trigger.Type, trigger.Raw, trigger.AdhocType
			t.UpdatedAt = now
			return nil
		}
	}
	trigger.ID = r.id()
	trigger.CreatedAt, trigger.UpdatedAt = now, now
	r.Triggers = append(r.Triggers, &trigger)
	return nil
}

func (r *Repository) UpdateTriggerShipped(_ context.Context, id uint, shipped time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.Triggers {
		if t.ID == id {
			t.Shipped = &shipped
			if t.Opened == nil {
				t.Opened = &shipped
			}
			t.UpdatedAt = r.Now()
			return nil
		}
	}
	return repository.ErrTriggerNotFound
}

func (r *Repository) UpsertEligibility(_ context.Context, elig models.Eligibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	if existing, ok := r.Eligibilities[elig.CustomerID]; ok {
		existing.MemberThru = elig.MemberThru
		existing.UpdatedAt = now
		return nil
	}
	elig.CreatedAt, elig.UpdatedAt = now, now
	r.Eligibilities[elig.CustomerID] = &elig
	return nil
}

func (r *Repository) GetEligibilities(_ context.Context, thruCutoff time.Time) ([]models.Eligibility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var eligs []models.Eligibility
	for _, e := range r.Eligibilities {
		if !e.MemberThru.Before(thruCutoff) {
			eligs = append(eligs, *e)
		}
	}
	sort.Slice(eligs, func(i, j int) bool { return eligs[i].CustomerID < eligs[j].CustomerID })
	return eligs, nil
}

func (r *Repository) GetRxNumber(_ context.Context, memberID string) (*models.RxNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rx, ok := r.RxNumbers[memberID]; ok {
		copied := *rx
		return &copied, nil
	}
	return nil, repository.ErrRxNumberNotFound
}

func (r *Repository) UpsertRxNumber(_ context.Context, rx models.RxNumber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RxNumbers[rx.MemberID] = &rx
	return nil
}

func (r *Repository) UpsertOutbound(_ context.Context, ob models.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	for _, existing := range r.Outbounds {
		if existing.CRMType == ob.CRMType && existing.CRMID == ob.CRMID && existing.Queue == ob.Queue {
			existing.CRMOrder, existing.Reason = ob.CRMOrder, ob.Reason
			existing.Ready, existing.TriggerID = ob.Ready, ob.TriggerID
			existing.UpdatedAt = now
			return nil
		}
	}
	ob.ID = r.id()
	ob.CreatedAt, ob.UpdatedAt = now, now
	r.Outbounds = append(r.Outbounds, &ob)
	return nil
}

func (r *Repository) GetOutboundByID(_ context.Context, id uint) (*models.Outbound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ob := range r.Outbounds {
		if ob.ID == id {
			copied := *ob
			return &copied, nil
		}
	}
	return nil, repository.ErrOutboundNotFound
}

func (r *Repository) UpdateOutboundReady(_ context.Context, id uint, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ob := range r.Outbounds {
		if ob.ID == id {
			ob.Ready = ready
			ob.UpdatedAt = r.Now()
			return nil
		}
	}
	return repository.ErrOutboundNotUpdated
}

func (r *Repository) DeleteOutbound(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ob := range r.Outbounds {
		if ob.ID == id {
			r.Outbounds = append(r.Outbounds[:i], r.Outbounds[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *Repository) InsertNeverStarted(_ context.Context, ns models.NeverStarted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.NeverStarteds {
		if existing.CRMType == ns.CRMType && existing.CRMID == ns.CRMID && existing.Queue == ns.Queue {
			return nil
		}
	}
	ns.ID = r.id()
	ns.CreatedAt = r.Now()
	r.NeverStarteds = append(r.NeverStarteds, &ns)
	return nil
}

func (r *Repository) InsertAdHoc(_ context.Context, adhoc models.AdHoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.AdHocs {
		if existing.CRMType == adhoc.CRMType && existing.CRMID == adhoc.CRMID &&
			existing.CRMOrder == adhoc.CRMOrder && existing.Type == adhoc.Type {
			return nil
		}
	}
	adhoc.ID = r.id()
	adhoc.CreatedAt = r.Now()
	r.AdHocs = append(r.AdHocs, &adhoc)
	return nil
}

func (r *Repository) CreateFeedbackFile(_ context.Context, file *models.FeedbackFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file.ID = r.id()
	r.FeedbackFiles = append(r.FeedbackFiles, file)
	return nil
}

func (r *Repository) UpdateFeedbackFileStatus(_ context.Context, id uint, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.FeedbackFiles {
		if f.ID == id {
			f.ImportStatus = status
			return nil
		}
	}
	return nil
}

func (r *Repository) AcquireLease(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now()
	if existing, ok := r.leases[name]; ok && existing.expiresAt.After(now) {
		return false, nil
	}
	r.leases[name] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (r *Repository) ReleaseLease(_ context.Context, name, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.leases[name]; ok && existing.holder == holder {
		delete(r.leases, name)
	}
	return nil
}
