package bloodbank

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

type Patients interface {
	Patient(id patient.ID) (patient.Patient, error)
}

// Thresholds supplies the blood "expiring soon" window in days.
type Thresholds interface {
	BloodExpiryWarnDays() int
}

// defaultMinimumUnits applies to inventory rows created by a donation.
const defaultMinimumUnits = 5

type Collections struct {
	Inventory   *collection.Collection[Inventory]
	Donors      *collection.Collection[Donor]
	Collections *collection.Collection[Collection]
	Storage     *collection.Collection[StorageUnit]
	Issues      *collection.Collection[Issue]
	Requests    *collection.Collection[Request]
	Activity    *collection.Collection[ActivityLog]
}

func Open(ctx context.Context, reg *collection.Registry) (*Collections, error) {
	var (
		c   Collections
		err error
	)
	if c.Inventory, err = collection.Open[Inventory](ctx, reg, InventoryKey, nil); err != nil {
		return nil, err
	}
	if c.Donors, err = collection.Open[Donor](ctx, reg, DonorsKey, nil); err != nil {
		return nil, err
	}
	if c.Collections, err = collection.Open[Collection](ctx, reg, CollectionsKey, nil); err != nil {
		return nil, err
	}
	if c.Storage, err = collection.Open[StorageUnit](ctx, reg, StorageKey, nil); err != nil {
		return nil, err
	}
	if c.Issues, err = collection.Open[Issue](ctx, reg, IssuesKey, nil); err != nil {
		return nil, err
	}
	if c.Requests, err = collection.Open[Request](ctx, reg, RequestsKey, nil); err != nil {
		return nil, err
	}
	if c.Activity, err = collection.Open[ActivityLog](ctx, reg, ActivityKey, nil); err != nil {
		return nil, err
	}
	return &c, nil
}

type Service struct {
	c          *Collections
	patients   Patients
	thresholds Thresholds
	clock      clock.Clock
}

func NewService(c *Collections, patients Patients, thresholds Thresholds, clk clock.Clock) *Service {
	c.Inventory.SetValidator(Inventory.Validate)
	c.Donors.SetValidator(Donor.Validate)
	c.Collections.SetValidator(Collection.Validate)
	c.Storage.SetValidator(StorageUnit.Validate)
	c.Requests.SetValidator(Request.Validate)
	return &Service{c: c, patients: patients, thresholds: thresholds, clock: clk}
}

// record appends to the activity log. A failed write is logged and does not
// fail the operation it describes.
func (s *Service) record(ctx context.Context, action, by, format string, args ...any) {
	now := s.clock.Now()
	entry := ActivityLog{
		ID:          collection.NewID("blog"),
		Action:      action,
		Details:     fmt.Sprintf(format, args...),
		PerformedBy: by,
		Date:        now.Format(clock.DateLayout),
		Time:        now.Format("15:04"),
	}
	if err := s.c.Activity.Add(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("action", action).Msg("blood bank activity not logged")
	}
}

// Activity returns the log, newest first.
func (s *Service) Activity() []ActivityLog {
	out := s.c.Activity.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date+out[i].Time > out[j].Date+out[j].Time })
	return out
}

// -- Inventory --

// adjust adds delta units to group, creating the row when missing. Going
// below zero is a conflict.
func (s *Service) adjust(ctx context.Context, group string, delta int) (Inventory, error) {
	today := clock.Today(s.clock)
	var row Inventory
	err := s.c.Inventory.Apply(ctx, func(cur []Inventory) ([]Inventory, error) {
		for i := range cur {
			if cur[i].BloodGroup != group {
				continue
			}
			if cur[i].Units+delta < 0 {
				return nil, collection.Conflictf("only %d units of %s in stock", cur[i].Units, group)
			}
			cur[i].Units += delta
			cur[i].LastUpdated = today
			row = cur[i]
			return cur, nil
		}
		if delta < 0 {
			return nil, collection.Conflictf("no %s units in stock", group)
		}
		row = Inventory{
			ID:           collection.NewID("inv"),
			BloodGroup:   group,
			Units:        delta,
			MinimumUnits: defaultMinimumUnits,
			LastUpdated:  today,
		}
		return append(cur, row), nil
	})
	return row, err
}

// Adjust corrects the stock of a blood group by delta units.
func (s *Service) Adjust(ctx context.Context, group string, delta int, reason, by string) (Inventory, error) {
	if !validGroup(group) {
		return Inventory{}, collection.Invalidf("bloodGroup %q is not valid", group)
	}
	if delta == 0 {
		return Inventory{}, collection.Invalidf("delta must not be zero")
	}
	row, err := s.adjust(ctx, group, delta)
	if err != nil {
		return Inventory{}, err
	}
	s.record(ctx, "inventory-adjusted", by, "%+d units of %s: %s", delta, group, reason)
	return row, nil
}

// UpdateInventory edits the reorder threshold of a group. Units move only
// through donations, issues and adjustments.
func (s *Service) UpdateInventory(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Inventory, bool, error) {
	if err := collection.Protected(partial, "units", "bloodGroup", "lastUpdated"); err != nil {
		return Inventory{}, false, err
	}
	return s.c.Inventory.Update(ctx, id, partial, opts...)
}

func (s *Service) LowStock() []Inventory {
	out := s.c.Inventory.Find(Inventory.LowStock)
	sort.Slice(out, func(i, j int) bool { return out[i].Units < out[j].Units })
	if out == nil {
		out = []Inventory{}
	}
	return out
}

// -- Donors --

func (s *Service) RegisterDonor(ctx context.Context, d Donor, by string) (Donor, error) {
	if d.ID == "" {
		d.ID = DonorID(collection.NewID("donor"))
	}
	if d.Status == "" {
		d.Status = "active"
	}
	d.TotalDonations = 0
	if err := s.c.Donors.Add(ctx, d); err != nil {
		return Donor{}, err
	}
	s.record(ctx, "donor-registered", by, "%s (%s)", d.Name, d.BloodGroup)
	return d, nil
}

func (s *Service) UpdateDonor(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Donor, bool, error) {
	if err := collection.Protected(partial, "lastDonation", "totalDonations"); err != nil {
		return Donor{}, false, err
	}
	return s.c.Donors.Update(ctx, id, partial, opts...)
}

func (s *Service) Donor(id DonorID) (Donor, error) {
	d, ok := s.c.Donors.Get(string(id))
	if !ok {
		return Donor{}, collection.NotFoundf("donor %s not found", id)
	}
	return d, nil
}

// EligibleDonors lists donors who may give blood today.
func (s *Service) EligibleDonors() []Donor {
	today := clock.Today(s.clock)
	out := s.c.Donors.Find(func(d Donor) bool {
		ok, _ := d.Eligible(today)
		return ok
	})
	if out == nil {
		out = []Donor{}
	}
	return out
}

// -- Collections --

// Donate records a donation from an eligible donor. The donation adds its
// units to inventory, stores a whole-blood bag and updates the donor.
func (s *Service) Donate(ctx context.Context, c Collection, by string) (Collection, error) {
	today := clock.Today(s.clock)
	d, err := s.Donor(c.DonorID)
	if err != nil {
		return Collection{}, err
	}
	if ok, reason := d.Eligible(today); !ok {
		return Collection{}, collection.Conflictf("%s cannot donate: %s", d.Name, reason)
	}
	if c.ID == "" {
		c.ID = collection.NewID("col")
	}
	if c.Units == 0 {
		c.Units = 1
	}
	if c.Volume == 0 {
		c.Volume = 450 * c.Units
	}
	if c.BagNumber == "" {
		c.BagNumber = "BAG-" + c.ID
	}
	c.Date = today
	c.DonorName = d.Name
	c.BloodGroup = d.BloodGroup
	c.Status = "stored"
	if err := s.c.Collections.Add(ctx, c); err != nil {
		return Collection{}, err
	}

	if _, err := s.adjust(ctx, c.BloodGroup, c.Units); err != nil {
		if _, delErr := s.c.Collections.Delete(ctx, c.ID); delErr != nil {
			return Collection{}, fmt.Errorf("donation %s: %w (revert failed: %v)", c.ID, err, delErr)
		}
		return Collection{}, err
	}

	expiry, _ := clock.AddDays(today, shelfLife["whole-blood"])
	bag := StorageUnit{
		ID:             collection.NewID("bag"),
		BagNumber:      c.BagNumber,
		BloodGroup:     c.BloodGroup,
		Component:      "whole-blood",
		Volume:         c.Volume,
		DonorID:        d.ID,
		CollectionDate: today,
		ExpiryDate:     expiry,
		Status:         UnitAvailable,
	}
	if err := s.c.Storage.Add(ctx, bag); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("collection_id", c.ID).Msg("donation stored without a storage bag")
	}
	if _, _, err := s.c.Donors.Mutate(ctx, string(d.ID), func(d *Donor) error {
		d.LastDonation = today
		d.TotalDonations++
		return nil
	}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("donor_id", string(d.ID)).Msg("donor history not updated")
	}
	s.record(ctx, "donation-collected", by, "%d unit(s) of %s from %s", c.Units, c.BloodGroup, d.Name)
	return c, nil
}

// -- Storage --

func (s *Service) StoreUnit(ctx context.Context, u StorageUnit) (StorageUnit, error) {
	if u.ID == "" {
		u.ID = collection.NewID("bag")
	}
	if u.Status == "" {
		u.Status = UnitAvailable
	}
	if u.CollectionDate == "" {
		u.CollectionDate = clock.Today(s.clock)
	}
	if u.ExpiryDate == "" {
		days, ok := shelfLife[u.Component]
		if !ok {
			return StorageUnit{}, collection.Invalidf("component %q is not valid", u.Component)
		}
		exp, err := clock.AddDays(u.CollectionDate, days)
		if err != nil {
			return StorageUnit{}, collection.Invalid(err)
		}
		u.ExpiryDate = exp
	}
	if err := s.c.Storage.Add(ctx, u); err != nil {
		return StorageUnit{}, err
	}
	return u, nil
}

// Expiry buckets the available units by expiry date, soonest first.
// UpdateUnit edits where a bag is kept. Its identity and dates come from
// the donation and its status from issues and expiry sweeps.
func (s *Service) UpdateUnit(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (StorageUnit, bool, error) {
	if err := collection.Protected(partial, "status", "bagNumber", "bloodGroup", "component",
		"donorId", "collectionDate", "expiryDate"); err != nil {
		return StorageUnit{}, false, err
	}
	return s.c.Storage.Update(ctx, id, partial, opts...)
}

func (s *Service) Expiry() ([]ExpiryEntry, error) {
	today := clock.Today(s.clock)
	var out []ExpiryEntry
	for _, u := range s.c.Storage.Find(func(u StorageUnit) bool { return u.Status == UnitAvailable }) {
		b, days, err := clock.BucketFor(today, u.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.BagNumber, err)
		}
		out = append(out, ExpiryEntry{Unit: u, Bucket: b, DaysLeft: days})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysLeft < out[j].DaysLeft })
	if out == nil {
		out = []ExpiryEntry{}
	}
	return out, nil
}

// ExpiringSoon lists available units within the warning window that have
// not yet expired.
func (s *Service) ExpiringSoon() []StorageUnit {
	today := clock.Today(s.clock)
	days := s.thresholds.BloodExpiryWarnDays()
	out := s.c.Storage.Find(func(u StorageUnit) bool {
		return u.Status == UnitAvailable && clock.ExpiringWithin(today, u.ExpiryDate, days)
	})
	if out == nil {
		out = []StorageUnit{}
	}
	return out
}

// MarkExpired flags available units past expiry and takes them out of
// inventory. It returns the number of units flagged.
func (s *Service) MarkExpired(ctx context.Context, by string) (int, error) {
	today := clock.Today(s.clock)
	perGroup := map[string]int{}
	err := s.c.Storage.Apply(ctx, func(cur []StorageUnit) ([]StorageUnit, error) {
		for i := range cur {
			if cur[i].Expired(today) {
				cur[i].Status = UnitExpired
				perGroup[cur[i].BloodGroup]++
			}
		}
		if len(perGroup) == 0 {
			return nil, nil
		}
		return cur, nil
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for group, count := range perGroup {
		n += count
		err := s.c.Inventory.Apply(ctx, func(cur []Inventory) ([]Inventory, error) {
			for i := range cur {
				if cur[i].BloodGroup == group {
					cur[i].Units = max(cur[i].Units-count, 0)
					cur[i].LastUpdated = today
					return cur, nil
				}
			}
			return nil, nil
		})
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("blood_group", group).Msg("inventory not reduced for expired units")
		}
	}
	if n > 0 {
		s.record(ctx, "units-expired", by, "%d unit(s) marked expired", n)
	}
	return n, nil
}

// -- Requests --

func (s *Service) CreateRequest(ctx context.Context, r Request) (Request, error) {
	if r.ID == "" {
		r.ID = collection.NewID("breq")
	}
	if r.Urgency == "" {
		r.Urgency = "routine"
	}
	r.Status = RequestPending
	r.RequestDate = clock.Today(s.clock)
	if err := r.Validate(); err != nil {
		return Request{}, collection.Invalid(err)
	}
	p, err := s.patients.Patient(r.PatientID)
	if err != nil {
		return Request{}, err
	}
	r.PatientName = p.Name
	if err := s.c.Requests.Add(ctx, r); err != nil {
		return Request{}, err
	}
	s.record(ctx, "request-created", r.RequestedBy, "%d unit(s) of %s for %s (%s)", r.Units, r.BloodGroup, r.PatientName, r.Urgency)
	return r, nil
}

func (s *Service) UpdateRequest(ctx context.Context, id string, partial map[string]any, opts ...collection.MutateOption) (Request, bool, error) {
	if err := collection.Protected(partial, "status", "patientId", "patientName", "requestDate", "requestedBy"); err != nil {
		return Request{}, false, err
	}
	return s.c.Requests.Mutate(ctx, id, func(r *Request) error {
		if r.Status != RequestPending {
			return collection.Conflictf("request is already %s", r.Status)
		}
		merged, err := collection.Merge(*r, partial)
		if err != nil {
			return err
		}
		*r = merged
		return nil
	}, opts...)
}

func (s *Service) setRequestStatus(ctx context.Context, id, to, from string) (Request, error) {
	r, found, err := s.c.Requests.Mutate(ctx, id, func(r *Request) error {
		if r.Status != from {
			return collection.Conflictf("request is %s, expected %s", r.Status, from)
		}
		r.Status = to
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	if !found {
		return Request{}, collection.NotFoundf("blood request %s not found", id)
	}
	return r, nil
}

func (s *Service) ApproveRequest(ctx context.Context, id, by string) (Request, error) {
	r, err := s.setRequestStatus(ctx, id, RequestApproved, RequestPending)
	if err != nil {
		return Request{}, err
	}
	s.record(ctx, "request-approved", by, "request %s for %s", r.ID, r.PatientName)
	return r, nil
}

func (s *Service) RejectRequest(ctx context.Context, id, reason, by string) (Request, error) {
	r, err := s.setRequestStatus(ctx, id, RequestRejected, RequestPending)
	if err != nil {
		return Request{}, err
	}
	s.record(ctx, "request-rejected", by, "request %s for %s: %s", r.ID, r.PatientName, reason)
	return r, nil
}

// Fulfill issues blood against an approved request. The request is claimed
// first; when stock is short the claim is undone.
func (s *Service) Fulfill(ctx context.Context, requestID, by string) (Issue, error) {
	r, err := s.setRequestStatus(ctx, requestID, RequestFulfilled, RequestApproved)
	if err != nil {
		return Issue{}, err
	}
	if _, stockErr := s.adjust(ctx, r.BloodGroup, -r.Units); stockErr != nil {
		if _, err := s.setRequestStatus(ctx, requestID, RequestApproved, RequestFulfilled); err != nil {
			return Issue{}, fmt.Errorf("fulfill request %s: %w (revert failed: %v)", requestID, stockErr, err)
		}
		return Issue{}, stockErr
	}

	today := clock.Today(s.clock)
	issue := Issue{
		ID:          collection.NewID("iss"),
		RequestID:   r.ID,
		PatientID:   r.PatientID,
		PatientName: r.PatientName,
		BloodGroup:  r.BloodGroup,
		Units:       r.Units,
		BagNumbers:  s.takeBags(ctx, r.BloodGroup, r.Units),
		IssueDate:   today,
		IssuedBy:    by,
	}
	if err := s.c.Issues.Add(ctx, issue); err != nil {
		return Issue{}, err
	}
	s.record(ctx, "blood-issued", by, "%d unit(s) of %s to %s", r.Units, r.BloodGroup, r.PatientName)
	return issue, nil
}

// takeBags marks up to n available bags of group as issued, earliest
// expiry first, and returns their numbers.
func (s *Service) takeBags(ctx context.Context, group string, n int) []string {
	var bags []string
	err := s.c.Storage.Apply(ctx, func(cur []StorageUnit) ([]StorageUnit, error) {
		idx := make([]int, 0, len(cur))
		for i, u := range cur {
			if u.BloodGroup == group && u.Status == UnitAvailable {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			return nil, nil
		}
		sort.SliceStable(idx, func(a, b int) bool { return cur[idx[a]].ExpiryDate < cur[idx[b]].ExpiryDate })
		for _, i := range idx[:min(n, len(idx))] {
			cur[i].Status = UnitIssued
			bags = append(bags, cur[i].BagNumber)
		}
		return cur, nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("blood_group", group).Msg("storage bags not marked issued")
		return nil
	}
	return bags
}

func (s *Service) Summarize() Summary {
	sum := Summary{UnitsByGroup: map[string]int{}, LowStock: s.LowStock()}
	for _, inv := range s.c.Inventory.List() {
		sum.TotalUnits += inv.Units
		sum.UnitsByGroup[inv.BloodGroup] += inv.Units
	}
	sum.PendingRequests = len(s.c.Requests.Find(func(r Request) bool { return r.Status == RequestPending }))
	sum.ExpiringSoon = len(s.ExpiringSoon())
	sum.EligibleDonors = len(s.EligibleDonors())
	return sum
}
