// Package dashboard computes the per-role overview screens from the domain
// collections and services.
package dashboard

import (
	"fmt"
	"sort"

	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/bloodbank"
	"github.com/hms/hms/internal/domain/lab"
	"github.com/hms/hms/internal/domain/messaging"
	"github.com/hms/hms/internal/domain/nursing"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/pharmacy"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/domain/ward"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
)

// Lister is the read side of a collection.
type Lister[T any] interface {
	List() []T
}

type Attendance interface {
	Summary(date string) (staff.AttendanceSummary, error)
}

type Billing interface {
	Summarize() billing.Summary
	ForPatient(id patient.ID) []billing.Bill
}

type Pharmacy interface {
	LowStock() []pharmacy.Medicine
	ExpiringSoon() []pharmacy.Medicine
}

type Wards interface {
	Occupancy() ward.OccupancyReport
}

type Nursing interface {
	OpenAlerts() []nursing.Alert
	LatestVitals() []nursing.Vitals
	Due(date string) []nursing.MedicationDose
}

type BloodBank interface {
	Summarize() bloodbank.Summary
}

type Messaging interface {
	ConversationsFor(userID string) []messaging.Conversation
	Notifications(userID string, unreadOnly bool) []messaging.Notification
}

// Sources is everything the overviews read. All fields are required.
type Sources struct {
	Patients      Lister[patient.Patient]
	Prescriptions Lister[patient.Prescription]
	Users         Lister[staff.User]
	Appointments  Lister[appointment.Appointment]
	LabTests      Lister[lab.Test]
	Medicines     Lister[pharmacy.Medicine]
	Refills       Lister[pharmacy.RefillRequest]
	Orders        Lister[pharmacy.PurchaseOrder]
	Vitals        Lister[nursing.Vitals]

	Attendance Attendance
	Billing    Billing
	Pharmacy   Pharmacy
	Wards      Wards
	Nursing    Nursing
	BloodBank  BloodBank
	Messaging  Messaging
}

type builder func(s *Service, today, userID string, o *Overview) error

var builders = map[string]builder{
	auth.RoleAdmin:        (*Service).admin,
	auth.RoleDoctor:       (*Service).doctor,
	auth.RoleNurse:        (*Service).nurse,
	auth.RoleReceptionist: (*Service).reception,
	auth.RolePharmacy:     (*Service).pharmacy,
	auth.RoleLaboratory:   (*Service).laboratory,
	auth.RoleBilling:      (*Service).billing,
	auth.RolePatient:      (*Service).patient,
	auth.RoleBloodBank:    (*Service).bloodBank,
}

type Service struct {
	src   Sources
	clock clock.Clock
}

func NewService(src Sources, clk clock.Clock) *Service {
	return &Service{src: src, clock: clk}
}

// Overview builds the dashboard of role as seen by userID. Doctor and
// patient overviews are scoped to userID.
func (s *Service) Overview(role, userID string) (Overview, error) {
	build, ok := builders[role]
	if !ok {
		return Overview{}, collection.NotFoundf("no dashboard for role %q", role)
	}
	o := Overview{Role: role, Date: clock.Today(s.clock), Cards: []Card{}}
	if err := build(s, o.Date, userID, &o); err != nil {
		return Overview{}, fmt.Errorf("dashboard %s: %w", role, err)
	}
	return o, nil
}

func (s *Service) appointmentsOn(date string) []appointment.Appointment {
	var out []appointment.Appointment
	for _, a := range s.src.Appointments.List() {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out
}

func countStatus[T any](items []T, status func(T) string, want ...string) int {
	n := 0
	for _, it := range items {
		st := status(it)
		for _, w := range want {
			if st == w {
				n++
				break
			}
		}
	}
	return n
}

func apptStatus(a appointment.Appointment) string { return a.Status }
func labStatus(t lab.Test) string                 { return t.Status }

func (s *Service) admin(today, _ string, o *Overview) error {
	patients := s.src.Patients.List()
	att, err := s.src.Attendance.Summary(today)
	if err != nil {
		return err
	}
	rev := s.src.Billing.Summarize()
	occ := s.src.Wards.Occupancy()
	blood := s.src.BloodBank.Summarize()

	o.add("totalPatients", "Total patients", float64(len(patients)))
	o.add("admittedPatients", "Admitted patients", float64(countStatus(patients,
		func(p patient.Patient) string { return p.Status }, patient.StatusAdmitted)))
	o.add("totalStaff", "Total staff", float64(len(s.src.Users.List())))
	o.add("staffPresent", "Staff present", att.PresentPercent, "%")
	o.add("todayAppointments", "Appointments today", float64(len(s.appointmentsOn(today))))
	o.add("revenueCollected", "Revenue collected", rev.Collected)
	o.add("outstanding", "Outstanding", rev.Outstanding)
	o.add("bedOccupancy", "Bed occupancy", occ.Overall.Rate, "%")
	o.add("lowStockMedicines", "Low-stock medicines", float64(len(s.src.Pharmacy.LowStock())))
	o.add("bloodUnits", "Blood units", float64(blood.TotalUnits))
	o.Revenue = rev.LastSevenDays
	o.list("departments", occ.Departments)
	return nil
}

func (s *Service) doctor(today, userID string, o *Overview) error {
	doc := staff.ID(userID)
	var queue []appointment.Appointment
	for _, a := range s.appointmentsOn(today) {
		if a.DoctorID == doc && a.Status != appointment.StatusCancelled {
			queue = append(queue, a)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].TokenNumber < queue[j].TokenNumber })

	pendingLabs := 0
	for _, t := range s.src.LabTests.List() {
		if t.DoctorID == doc && t.Status != lab.StatusCompleted && t.Status != lab.StatusCancelled {
			pendingLabs++
		}
	}
	activeRx := 0
	for _, rx := range s.src.Prescriptions.List() {
		if rx.DoctorID == doc && rx.Status == patient.RxActive {
			activeRx++
		}
	}

	o.add("todayAppointments", "Appointments today", float64(len(queue)))
	o.add("completedToday", "Completed today", float64(countStatus(queue, apptStatus, appointment.StatusCompleted)))
	o.add("waiting", "Waiting", float64(countStatus(queue, apptStatus, appointment.StatusScheduled)))
	o.add("pendingLabResults", "Pending lab results", float64(pendingLabs))
	o.add("activePrescriptions", "Active prescriptions", float64(activeRx))
	o.list("queue", nonNil(queue))
	return nil
}

func (s *Service) nurse(today, _ string, o *Overview) error {
	alerts := s.src.Nursing.OpenAlerts()
	critical := 0
	for _, a := range alerts {
		if a.Severity == "critical" {
			critical++
		}
	}
	recorded := 0
	for _, v := range s.src.Vitals.List() {
		if v.Date == today {
			recorded++
		}
	}
	due := s.src.Nursing.Due(today)

	o.add("admittedPatients", "Admitted patients", float64(countStatus(s.src.Patients.List(),
		func(p patient.Patient) string { return p.Status }, patient.StatusAdmitted)))
	o.add("openAlerts", "Open alerts", float64(len(alerts)))
	o.add("criticalAlerts", "Critical alerts", float64(critical))
	o.add("dosesDue", "Doses due today", float64(len(due)))
	o.add("vitalsToday", "Vitals recorded today", float64(recorded))
	o.add("bedOccupancy", "Bed occupancy", s.src.Wards.Occupancy().Overall.Rate, "%")
	o.list("alerts", alerts)
	o.list("dosesDue", due)
	return nil
}

func (s *Service) reception(today, _ string, o *Overview) error {
	appts := s.appointmentsOn(today)
	registered := 0
	for _, p := range s.src.Patients.List() {
		if p.RegisteredDate == today {
			registered++
		}
	}
	occ := s.src.Wards.Occupancy()
	rev := s.src.Billing.Summarize()

	o.add("todayAppointments", "Appointments today", float64(len(appts)))
	o.add("scheduled", "Scheduled", float64(countStatus(appts, apptStatus, appointment.StatusScheduled)))
	o.add("inProgress", "In progress", float64(countStatus(appts, apptStatus, appointment.StatusInProgress)))
	o.add("completed", "Completed", float64(countStatus(appts, apptStatus, appointment.StatusCompleted)))
	o.add("registeredToday", "Registered today", float64(registered))
	o.add("availableBeds", "Available beds", float64(occ.Overall.Available))
	o.add("pendingBills", "Pending bills", float64(rev.ByStatus[billing.StatusPending]+rev.ByStatus[billing.StatusPartial]))
	return nil
}

func (s *Service) pharmacy(_, _ string, o *Overview) error {
	meds := s.src.Medicines.List()
	value := 0.0
	for _, m := range meds {
		value += float64(m.Quantity) * m.UnitPrice
	}
	low := s.src.Pharmacy.LowStock()
	soon := s.src.Pharmacy.ExpiringSoon()

	o.add("totalMedicines", "Medicines", float64(len(meds)))
	o.add("lowStock", "Low stock", float64(len(low)))
	o.add("expiringSoon", "Expiring soon", float64(len(soon)))
	o.add("pendingRefills", "Pending refills", float64(countStatus(s.src.Refills.List(),
		func(r pharmacy.RefillRequest) string { return r.Status }, pharmacy.RefillPending)))
	o.add("openOrders", "Open purchase orders", float64(countStatus(s.src.Orders.List(),
		func(p pharmacy.PurchaseOrder) string { return p.Status }, pharmacy.OrderPending, pharmacy.OrderApproved)))
	o.add("inventoryValue", "Inventory value", billing.Round2(value))
	o.list("lowStock", low)
	o.list("expiringSoon", soon)
	return nil
}

func (s *Service) laboratory(today, _ string, o *Overview) error {
	tests := s.src.LabTests.List()
	open, stat, completedToday := 0, 0, 0
	for _, t := range tests {
		switch t.Status {
		case lab.StatusCompleted:
			if t.CompletedDate == today {
				completedToday++
			}
		case lab.StatusCancelled:
		default:
			open++
			if t.Priority == "stat" {
				stat++
			}
		}
	}
	completed := countStatus(tests, labStatus, lab.StatusCompleted)

	o.add("pending", "Pending", float64(countStatus(tests, labStatus, lab.StatusPending)))
	o.add("sampleCollected", "Sample collected", float64(countStatus(tests, labStatus, lab.StatusSampleCollected)))
	o.add("inProgress", "In progress", float64(countStatus(tests, labStatus, lab.StatusInProgress)))
	o.add("statOpen", "Open STAT orders", float64(stat))
	o.add("completedToday", "Completed today", float64(completedToday))
	o.add("completionRate", "Completion rate", percent(completed, completed+open), "%")
	return nil
}

func (s *Service) billing(_, _ string, o *Overview) error {
	rev := s.src.Billing.Summarize()
	o.add("totalBilled", "Total billed", rev.TotalBilled)
	o.add("collected", "Collected", rev.Collected)
	o.add("outstanding", "Outstanding", rev.Outstanding)
	o.add("overdue", "Overdue bills", float64(rev.OverdueCount))
	rate := 0.0
	if rev.TotalBilled > 0 {
		rate = billing.Round2(rev.Collected * 100 / rev.TotalBilled)
	}
	o.add("collectionRate", "Collection rate", rate, "%")
	o.Revenue = rev.LastSevenDays
	o.list("byStatus", rev.ByStatus)
	return nil
}

func (s *Service) patient(today, userID string, o *Overview) error {
	pid := patient.ID(userID)
	var upcoming []appointment.Appointment
	for _, a := range s.src.Appointments.List() {
		if a.PatientID == pid && a.Date >= today && a.Status == appointment.StatusScheduled {
			upcoming = append(upcoming, a)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		if upcoming[i].Date != upcoming[j].Date {
			return upcoming[i].Date < upcoming[j].Date
		}
		return upcoming[i].Time < upcoming[j].Time
	})
	activeRx := 0
	for _, rx := range s.src.Prescriptions.List() {
		if rx.PatientID == pid && rx.Status == patient.RxActive {
			activeRx++
		}
	}
	pendingLabs := 0
	for _, t := range s.src.LabTests.List() {
		if t.PatientID == pid && t.Status != lab.StatusCompleted && t.Status != lab.StatusCancelled {
			pendingLabs++
		}
	}
	balance := 0.0
	for _, b := range s.src.Billing.ForPatient(pid) {
		balance += b.Balance()
	}
	unreadMessages := 0
	for _, c := range s.src.Messaging.ConversationsFor(userID) {
		if c.PatientID == pid {
			unreadMessages += c.UnreadForPatient
		}
	}

	o.add("upcomingAppointments", "Upcoming appointments", float64(len(upcoming)))
	o.add("activePrescriptions", "Active prescriptions", float64(activeRx))
	o.add("pendingLabTests", "Pending lab tests", float64(pendingLabs))
	o.add("balanceDue", "Balance due", billing.Round2(balance))
	o.add("unreadMessages", "Unread messages", float64(unreadMessages))
	o.add("unreadNotifications", "Unread notifications", float64(len(s.src.Messaging.Notifications(userID, true))))
	o.list("upcoming", nonNil(upcoming))
	return nil
}

func (s *Service) bloodBank(_, _ string, o *Overview) error {
	sum := s.src.BloodBank.Summarize()
	o.add("totalUnits", "Total units", float64(sum.TotalUnits))
	o.add("lowStockGroups", "Low-stock groups", float64(len(sum.LowStock)))
	o.add("pendingRequests", "Pending requests", float64(sum.PendingRequests))
	o.add("expiringSoon", "Expiring soon", float64(sum.ExpiringSoon))
	o.add("eligibleDonors", "Eligible donors", float64(sum.EligibleDonors))
	o.list("unitsByGroup", sum.UnitsByGroup)
	o.list("lowStock", sum.LowStock)
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
