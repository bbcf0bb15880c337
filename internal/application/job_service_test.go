package application

import (
	"context"
	"sync"
	"testing"
	"time"

	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/aquatrack-hygiene/service-booking/internal/proto/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartJob_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pending := f.createBooking(t, "upi")
	_, err := f.bookings.AssignTechnician(ctx, f.admin, pending.ID, f.technician.ID)
	require.NoError(t, err)
	_, err = f.jobs.StartJob(ctx, f.technician, pending.ID)
	assertKind(t, domain.KindConflict, err)

	id := f.confirmedAndAssigned(t)
	stranger := NewActor(uuid.New(), auth.RoleTechnician)
	_, err = f.jobs.StartJob(ctx, stranger, id)
	assertKind(t, domain.KindNotFound, err)

	_, err = f.jobs.StartJob(ctx, f.customer, id)
	assertKind(t, domain.KindForbidden, err)

	_, err = f.jobs.StartJob(ctx, f.technician, uuid.New())
	assertKind(t, domain.KindNotFound, err)
}

func TestStartJob_InitialisesChecklistOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.confirmedAndAssigned(t)

	started, err := f.jobs.StartJob(ctx, f.technician, id)
	require.NoError(t, err)
	assert.Equal(t, "in-progress", started.Status)
	require.NotNil(t, started.Checklist)
	assert.Len(t, started.Checklist.Steps, 8)
	for _, name := range bookingDomain.StepNames {
		step := started.Checklist.Steps[name]
		require.NotNil(t, step, name)
		assert.Equal(t, bookingDomain.StepPending, step.Status)
		assert.Empty(t, step.Photos)
	}
	assert.Zero(t, started.Checklist.WaterUsageLitres)
	assert.Empty(t, started.Checklist.ChemicalsUsed)

	_, err = f.jobs.UpdateChecklistStep(ctx, f.technician, id, UpdateStepRequest{Step: "arrival", Status: "completed"})
	require.NoError(t, err)

	again, err := f.jobs.StartJob(ctx, f.technician, id)
	require.NoError(t, err)
	assert.Equal(t, bookingDomain.StepCompleted, again.Checklist.Steps[bookingDomain.StepArrival].Status)

	assert.Equal(t, 1, countType(f.publisher.types(), events.JobStarted))
}

func TestStartJob_ConcurrentStartsInitialiseOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.confirmedAndAssigned(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.jobs.StartJob(ctx, f.technician, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countType(f.publisher.types(), events.JobStarted))
}

func TestUpdateChecklistStep_MergesPartialUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.startedJob(t)

	_, err := f.jobs.UpdateChecklistStep(ctx, f.technician, id, UpdateStepRequest{
		Step: "scrub", Status: "pending", Notes: "heavy sludge", PhotoURL: "s1.jpg",
	})
	require.NoError(t, err)

	later := fixedNow.Add(20 * time.Minute)
	updated, err := f.jobs.UpdateChecklistStep(ctx, f.technician, id, UpdateStepRequest{
		Step: "scrub", Status: "completed", PhotoURL: "s2.jpg", Timestamp: &later,
	})
	require.NoError(t, err)

	scrub := updated.Checklist.Steps[bookingDomain.StepScrub]
	assert.Equal(t, bookingDomain.StepCompleted, scrub.Status)
	assert.Equal(t, "heavy sludge", scrub.Notes)
	assert.Equal(t, []string{"s1.jpg", "s2.jpg"}, scrub.Photos)
	require.NotNil(t, scrub.Timestamp)
	assert.True(t, later.Equal(*scrub.Timestamp))

	// Other steps are untouched.
	assert.Equal(t, bookingDomain.StepPending, updated.Checklist.Steps[bookingDomain.StepDrain].Status)
}

func TestUpdateChecklistStep_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.startedJob(t)

	_, err := f.jobs.UpdateChecklistStep(ctx, f.technician, id, UpdateStepRequest{Step: "polish", Status: "completed"})
	assertKind(t, domain.KindValidation, err)

	_, err = f.jobs.UpdateChecklistStep(ctx, f.technician, id, UpdateStepRequest{Step: "drain", Status: "done"})
	assertKind(t, domain.KindValidation, err)

	notStarted := f.confirmedAndAssigned(t)
	_, err = f.jobs.UpdateChecklistStep(ctx, f.technician, notStarted, UpdateStepRequest{Step: "drain", Status: "completed"})
	assertKind(t, domain.KindConflict, err)
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.startedJob(t)

	_, err := f.jobs.RecordUsage(ctx, f.technician, id, RecordUsageRequest{
		Chemical: &ChemicalRequest{Name: "chlorine", Quantity: 0.5, Unit: "kg"}, WaterLitres: 200,
	})
	require.NoError(t, err)
	updated, err := f.jobs.RecordUsage(ctx, f.technician, id, RecordUsageRequest{WaterLitres: 150})
	require.NoError(t, err)

	assert.Equal(t, 350, updated.Checklist.WaterUsageLitres)
	require.Len(t, updated.Checklist.ChemicalsUsed, 1)
	assert.Equal(t, "chlorine", updated.Checklist.ChemicalsUsed[0].Name)

	_, err = f.jobs.RecordUsage(ctx, f.technician, id, RecordUsageRequest{WaterLitres: -5})
	assertKind(t, domain.KindValidation, err)
}

func TestReportIncident_EscalatesFromAnyState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Even a booking that was never started can be escalated by its technician.
	bk := f.createBooking(t, "upi")
	_, err := f.bookings.AssignTechnician(ctx, f.admin, bk.ID, f.technician.ID)
	require.NoError(t, err)

	first, err := f.jobs.ReportIncident(ctx, f.technician, bk.ID, ReportIncidentRequest{
		Description: "gate locked", Severity: "low",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", first.Status)
	require.Len(t, first.IncidentReports, 1)

	second, err := f.jobs.ReportIncident(ctx, f.technician, bk.ID, ReportIncidentRequest{
		Description: "tank cracked", Severity: "critical", Photos: []string{"crack.jpg"}, UnableToProceed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "escalated", second.Status)
	require.Len(t, second.IncidentReports, 2)
	assert.Equal(t, first.IncidentReports[0], second.IncidentReports[0])
	assert.Equal(t, f.technician.ID, second.IncidentReports[1].ReportedBy)
	assert.Equal(t, []string{"crack.jpg"}, second.IncidentReports[1].PhotoURLs)

	_, err = f.jobs.ReportIncident(ctx, f.technician, bk.ID, ReportIncidentRequest{Description: "x", Severity: "apocalyptic"})
	assertKind(t, domain.KindValidation, err)

	_, err = f.jobs.ReportIncident(ctx, NewActor(uuid.New(), auth.RoleTechnician), bk.ID, ReportIncidentRequest{Description: "x", Severity: "low"})
	assertKind(t, domain.KindNotFound, err)

	types := f.publisher.types()
	assert.Equal(t, 2, countType(types, events.JobIncidentReported))
	assert.Equal(t, 1, countType(types, events.JobEscalated))
}

func TestReportIncident_ConcurrentAppendsAreKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.startedJob(t)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.jobs.ReportIncident(ctx, f.technician, id, ReportIncidentRequest{Description: "leak", Severity: "medium"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Incidents(), n)
}

func TestCompleteJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := CompleteJobRequest{
		BeforePhotos:      []string{"before.jpg"},
		AfterPhotos:       []string{"after.jpg"},
		CustomerSignature: "data:image/png;base64,AAA",
		Notes:             "all good",
	}

	notStarted := f.confirmedAndAssigned(t)
	_, err := f.jobs.CompleteJob(ctx, f.technician, notStarted, req)
	assertKind(t, domain.KindConflict, err)

	id := f.startedJob(t)
	_, err = f.jobs.CompleteJob(ctx, f.technician, id, CompleteJobRequest{AfterPhotos: req.AfterPhotos, CustomerSignature: "sig"})
	assertKind(t, domain.KindValidation, err)

	done, err := f.jobs.CompleteJob(ctx, f.technician, id, req)
	require.NoError(t, err)
	assert.Equal(t, "completed", done.Status)
	require.NotNil(t, done.Completion)
	assert.Equal(t, "all good", done.Completion.Notes)
	assert.True(t, fixedNow.Equal(done.Completion.CompletedAt))

	_, err = f.jobs.CompleteJob(ctx, f.technician, id, req)
	assertKind(t, domain.KindConflict, err)

	escalated := f.startedJob(t)
	_, err = f.jobs.ReportIncident(ctx, f.technician, escalated, ReportIncidentRequest{Description: "pump failed", Severity: "high", UnableToProceed: true})
	require.NoError(t, err)
	_, err = f.jobs.CompleteJob(ctx, f.technician, escalated, req)
	assertKind(t, domain.KindConflict, err)
}

func TestListJobsAndDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.confirmedAndAssigned(t)

	unpaid := f.createBooking(t, "upi")
	_, err := f.bookings.AssignTechnician(ctx, f.admin, unpaid.ID, f.technician.ID)
	require.NoError(t, err)

	jobs, err := f.jobs.ListJobs(ctx, f.technician, ListJobsQuery{})
	require.NoError(t, err)
	require.Len(t, jobs.Items, 1)
	assert.Equal(t, id, jobs.Items[0].ID)

	pending, err := f.jobs.ListJobs(ctx, f.technician, ListJobsQuery{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Total)

	detail, err := f.jobs.GetJob(ctx, f.technician, id)
	require.NoError(t, err)
	assert.Equal(t, id, detail.Job.ID)
	require.NotNil(t, detail.Address)
	assert.Equal(t, "12 Lake Road", detail.Address.AddressLine)
	require.NotNil(t, detail.Customer)
	assert.Equal(t, "9000000001", detail.Customer.Phone)

	_, err = f.jobs.GetJob(ctx, NewActor(uuid.New(), auth.RoleTechnician), id)
	assertKind(t, domain.KindNotFound, err)
}

func TestJobStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.confirmedAndAssigned(t)
	f.startedJob(t)
	done := f.startedJob(t)
	_, err := f.jobs.CompleteJob(ctx, f.technician, done, CompleteJobRequest{
		BeforePhotos: []string{"b"}, AfterPhotos: []string{"a"}, CustomerSignature: "s",
	})
	require.NoError(t, err)

	stats, err := f.jobs.Stats(ctx, f.technician)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.Today)
	assert.Equal(t, int64(1), stats.CompletedToday)
	assert.Equal(t, int64(1), stats.InProgress)
}

func TestScenario_CashBookingEscalatedMidJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bk := f.createBooking(t, "cod")
	assert.Equal(t, int64(150000), bk.Amount)
	assert.Equal(t, "pending", bk.Status)

	order, err := f.bookings.CreatePaymentOrder(ctx, f.customer, bk.ID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", order.Status)

	_, err = f.bookings.AssignTechnician(ctx, f.admin, bk.ID, f.technician.ID)
	require.NoError(t, err)

	started, err := f.jobs.StartJob(ctx, f.technician, bk.ID)
	require.NoError(t, err)
	assert.Equal(t, "in-progress", started.Status)
	assert.Len(t, started.Checklist.Steps, 8)

	_, err = f.jobs.UpdateChecklistStep(ctx, f.technician, bk.ID, UpdateStepRequest{Step: "drain", Status: "completed"})
	require.NoError(t, err)

	escalated, err := f.jobs.ReportIncident(ctx, f.technician, bk.ID, ReportIncidentRequest{
		Description: "structural crack", Severity: "critical", UnableToProceed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "escalated", escalated.Status)
	assert.Len(t, escalated.IncidentReports, 1)
	assert.Equal(t, bookingDomain.StepCompleted, escalated.Checklist.Steps[bookingDomain.StepDrain].Status)
	assert.Equal(t, bookingDomain.StepPending, escalated.Checklist.Steps[bookingDomain.StepScrub].Status)
}

func countType(types []string, want string) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}
