package tasks_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samplefront/samplefront/internal/clock"
	"github.com/samplefront/samplefront/internal/model"
	"github.com/samplefront/samplefront/internal/service/tasks"
	"github.com/samplefront/samplefront/internal/storage"
	"github.com/samplefront/samplefront/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *tasks.Service
)

var now = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		os.Exit(1)
	}
	testSvc = tasks.New(testDB, clock.Fixed{T: now}, testutil.TestLogger())

	code := m.Run()

	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func mustCustomer(t *testing.T, name string, lastContact *time.Time, burnDays *int) model.Customer {
	t.Helper()
	c, err := testDB.UpsertCustomer(context.Background(), model.Customer{
		ID:                    uuid.New(),
		Name:                  name,
		LastContactDate:       lastContact,
		EstimatedBurnRateDays: burnDays,
	})
	require.NoError(t, err)
	return c
}

func mustSample(t *testing.T, customerID uuid.UUID, given time.Time) model.SampleUsage {
	t.Helper()
	s, err := testDB.CreateSample(context.Background(), model.SampleUsage{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProductID:  uuid.New(),
		SalesRepID: uuid.New(),
		DateGiven:  given,
		Quantity:   1,
	})
	require.NoError(t, err)
	return s
}

func TestRunTriggersEndToEnd(t *testing.T) {
	ctx := context.Background()
	cust := mustCustomer(t, "run-e2e", nil, nil)
	sample := mustSample(t, cust.ID, now.AddDate(0, 0, -10))

	def, err := testSvc.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "stale sample chase",
		Type:       model.TriggerSampleNoOrder,
		Conditions: model.TriggerConditions{DaysAfterSample: 7},
		Action:     model.ActionPayload{Priority: model.PriorityHigh, Title: "Chase the sample"},
		IsActive:   true,
	})
	require.NoError(t, err)

	res, err := testSvc.RunTriggers(ctx)
	require.NoError(t, err)

	var task *model.Task
	for i := range res.Created {
		if res.Created[i].SampleID != nil && *res.Created[i].SampleID == sample.ID {
			task = &res.Created[i]
		}
	}
	require.NotNil(t, task, "expected a task for the stale sample")
	assert.Equal(t, model.TaskSampleFollowup, task.Type)
	assert.Equal(t, model.PriorityHigh, task.Priority)
	assert.Equal(t, "Chase the sample", task.Title)
	require.NotNil(t, task.TriggerID)
	assert.Equal(t, def.ID, *task.TriggerID)

	// A second pass dedups against the open task.
	res, err = testSvc.RunTriggers(ctx)
	require.NoError(t, err)
	for _, created := range res.Created {
		if created.SampleID != nil {
			assert.NotEqual(t, sample.ID, *created.SampleID)
		}
	}
	assert.Greater(t, res.Deduped, 0)

	// Completing the task lets the trigger fire again for that sample.
	_, err = testSvc.Complete(ctx, task.ID)
	require.NoError(t, err)

	res, err = testSvc.RunTriggers(ctx)
	require.NoError(t, err)
	refired := false
	for _, created := range res.Created {
		if created.SampleID != nil && *created.SampleID == sample.ID {
			refired = true
		}
	}
	assert.True(t, refired)
}

func TestRunTriggersBurnRate(t *testing.T) {
	ctx := context.Background()

	burn := 10
	lastContact := now.AddDate(0, 0, -15) // 15 days since contact, threshold 10
	cust := mustCustomer(t, "burn-e2e", &lastContact, &burn)

	fresh := now.AddDate(0, 0, -2)
	freshCust := mustCustomer(t, "burn-fresh", &fresh, &burn)

	_, err := testSvc.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "supply exhausted",
		Type:       model.TriggerBurnRateAlert,
		Conditions: model.TriggerConditions{ThresholdDays: 10},
		IsActive:   true,
	})
	require.NoError(t, err)

	res, err := testSvc.RunTriggers(ctx)
	require.NoError(t, err)

	var task *model.Task
	for i := range res.Created {
		c := res.Created[i]
		if c.Type == model.TaskBurnRateAlert && c.CustomerID != nil && *c.CustomerID == cust.ID {
			task = &res.Created[i]
		}
		if c.Type == model.TaskBurnRateAlert && c.CustomerID != nil {
			assert.NotEqual(t, freshCust.ID, *c.CustomerID, "customer within threshold must not alert")
		}
	}
	require.NotNil(t, task)
	assert.Equal(t, model.PriorityHigh, task.Priority, "burn rate alerts are always high priority")
}

func TestRunTriggersSkipsInactive(t *testing.T) {
	ctx := context.Background()
	cust := mustCustomer(t, "inactive-e2e", nil, nil)
	mustSample(t, cust.ID, now.AddDate(0, 0, -30))

	def, err := testSvc.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "dormant rule",
		Type:       model.TriggerSampleNoOrder,
		Conditions: model.TriggerConditions{DaysAfterSample: 3},
		IsActive:   true,
	})
	require.NoError(t, err)
	require.NoError(t, testSvc.SetTriggerActive(ctx, def.ID, false))

	res, err := testSvc.RunTriggers(ctx)
	require.NoError(t, err)
	for _, created := range res.Created {
		if created.TriggerID != nil {
			assert.NotEqual(t, def.ID, *created.TriggerID)
		}
	}
	for _, r := range res.Reports {
		assert.NotEqual(t, def.ID, r.TriggerID, "inactive triggers are not evaluated")
	}
}

func TestCompleteIdempotent(t *testing.T) {
	ctx := context.Background()
	cust := mustCustomer(t, "complete-e2e", nil, nil)

	task, err := testSvc.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &cust.ID,
		Priority:   model.PriorityMedium,
		Title:      "Say hello",
	})
	require.NoError(t, err)

	first, err := testSvc.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyCompleted)
	require.NotNil(t, first.Task.CompletedAt)

	second, err := testSvc.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)
	require.NotNil(t, second.Task.CompletedAt)
	assert.True(t, second.Task.CompletedAt.Equal(*first.Task.CompletedAt))
}

func TestCompleteUnknownTask(t *testing.T) {
	_, err := testSvc.Complete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManualCreateHonorsOpenTaskInvariant(t *testing.T) {
	ctx := context.Background()
	cust := mustCustomer(t, "manual-dup", nil, nil)

	task := model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &cust.ID,
		Priority:   model.PriorityLow,
		Title:      "Ping",
	}
	_, err := testSvc.CreateTask(ctx, task)
	require.NoError(t, err)

	_, err = testSvc.CreateTask(ctx, task)
	assert.ErrorIs(t, err, storage.ErrDuplicateOpenTask)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	custA := mustCustomer(t, "stats-a", nil, nil)
	custB := mustCustomer(t, "stats-b", nil, nil)

	def, err := testSvc.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "stats rule",
		Type:       model.TriggerCustomerTiming,
		Conditions: model.TriggerConditions{DaysSinceLastContact: 30},
		IsActive:   true,
	})
	require.NoError(t, err)

	done, err := testSvc.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &custA.ID,
		TriggerID:  &def.ID,
		Priority:   model.PriorityMedium,
		Title:      "A",
	})
	require.NoError(t, err)
	_, err = testSvc.Complete(ctx, done.ID)
	require.NoError(t, err)

	_, err = testSvc.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &custB.ID,
		TriggerID:  &def.ID,
		Priority:   model.PriorityMedium,
		Title:      "B",
	})
	require.NoError(t, err)

	stats, err := testSvc.Statistics(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.InDelta(t, 0.5, stats.CompletionRate, 1e-9)

	_, err = testSvc.Statistics(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
