package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samplefront/samplefront/internal/model"
	"github.com/samplefront/samplefront/internal/storage"
	"github.com/samplefront/samplefront/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func newCustomer(t *testing.T, name string) model.Customer {
	t.Helper()
	c, err := testDB.UpsertCustomer(context.Background(), model.Customer{
		ID:   uuid.New(),
		Name: name,
	})
	require.NoError(t, err)
	return c
}

func newSample(t *testing.T, customerID uuid.UUID, given time.Time) model.SampleUsage {
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

func newOrder(t *testing.T, customerID uuid.UUID, status model.OrderStatus, value int64) model.CustomerOrder {
	t.Helper()
	o, err := testDB.UpsertOrder(context.Background(), model.CustomerOrder{
		ID:         uuid.New(),
		CustomerID: customerID,
		OrderDate:  time.Now().UTC(),
		TotalValue: value,
		Status:     status,
	})
	require.NoError(t, err)
	return o
}

func TestCreateAndGetSample(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "acme")

	feedback := "liked the texture"
	created, err := testDB.CreateSample(ctx, model.SampleUsage{
		ID:         uuid.New(),
		CustomerID: cust.ID,
		ProductID:  uuid.New(),
		SalesRepID: uuid.New(),
		DateGiven:  time.Now().UTC().Add(-48 * time.Hour),
		Quantity:   3,
		Feedback:   &feedback,
	})
	require.NoError(t, err)

	got, err := testDB.GetSample(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 3, got.Quantity)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, feedback, *got.Feedback)
	assert.False(t, got.ResultedInOrder)
	assert.Nil(t, got.OrderID)
}

func TestGetSampleNotFound(t *testing.T) {
	_, err := testDB.GetSample(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkSampleAttributedCAS(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "cas-test")
	sample := newSample(t, cust.ID, time.Now().UTC().Add(-72*time.Hour))
	orderA := newOrder(t, cust.ID, model.OrderCompleted, 1500_00)
	orderB := newOrder(t, cust.ID, model.OrderCompleted, 900_00)

	won, err := testDB.MarkSampleAttributed(ctx, sample.ID, orderA.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// A second attribution against the same sample loses the CAS.
	won, err = testDB.MarkSampleAttributed(ctx, sample.ID, orderB.ID)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := testDB.GetSample(ctx, sample.ID)
	require.NoError(t, err)
	assert.True(t, got.ResultedInOrder)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, orderA.ID, *got.OrderID)
}

func TestMarkSampleAttributedMissing(t *testing.T) {
	cust := newCustomer(t, "cas-missing")
	order := newOrder(t, cust.ID, model.OrderCompleted, 100)

	_, err := testDB.MarkSampleAttributed(context.Background(), uuid.New(), order.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertOrderUpdatesStatus(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "order-upsert")
	order := newOrder(t, cust.ID, model.OrderPending, 500)

	order.Status = model.OrderCompleted
	_, err := testDB.UpsertOrder(ctx, order)
	require.NoError(t, err)

	got, err := testDB.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, got.Status)
}

func TestListUnattributedCompletedOrders(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "sweep-list")
	sample := newSample(t, cust.ID, time.Now().UTC().Add(-24*time.Hour))

	linked := newOrder(t, cust.ID, model.OrderCompleted, 100)
	unlinked := newOrder(t, cust.ID, model.OrderCompleted, 200)
	newOrder(t, cust.ID, model.OrderPending, 300)

	won, err := testDB.MarkSampleAttributed(ctx, sample.ID, linked.ID)
	require.NoError(t, err)
	require.True(t, won)

	orders, err := testDB.ListUnattributedCompletedOrders(ctx, 1000)
	require.NoError(t, err)

	ids := make(map[uuid.UUID]bool, len(orders))
	for _, o := range orders {
		assert.Equal(t, model.OrderCompleted, o.Status)
		ids[o.ID] = true
	}
	assert.True(t, ids[unlinked.ID])
	assert.False(t, ids[linked.ID])
}

func TestTriggerRoundTrip(t *testing.T) {
	ctx := context.Background()

	def, err := testDB.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "7 day sample chase",
		Type:       model.TriggerSampleNoOrder,
		Conditions: model.TriggerConditions{DaysAfterSample: 7},
		Action:     model.ActionPayload{Priority: model.PriorityHigh, Title: "Call them"},
		IsActive:   true,
	})
	require.NoError(t, err)

	got, err := testDB.GetTrigger(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerSampleNoOrder, got.Type)
	assert.Equal(t, 7, got.Conditions.DaysAfterSample)
	assert.Equal(t, model.PriorityHigh, got.Action.Priority)
	assert.Equal(t, "Call them", got.Action.Title)
	assert.True(t, got.IsActive)

	require.NoError(t, testDB.SetTriggerActive(ctx, def.ID, false))
	got, err = testDB.GetTrigger(ctx, def.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active, err := testDB.ListTriggers(ctx, true)
	require.NoError(t, err)
	for _, d := range active {
		assert.NotEqual(t, def.ID, d.ID)
	}
}

func TestSetTriggerActiveNotFound(t *testing.T) {
	err := testDB.SetTriggerActive(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateTriggerRejectsMalformed(t *testing.T) {
	_, err := testDB.CreateTrigger(context.Background(), model.TriggerDefinition{
		Name: "bad",
		Type: model.TriggerSampleNoOrder,
		// DaysAfterSample missing.
	})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateTaskDuplicateOpen(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "task-dup")
	sample := newSample(t, cust.ID, time.Now().UTC().Add(-24*time.Hour))

	task := model.Task{
		Type:     model.TaskSampleFollowup,
		SampleID: &sample.ID,
		Priority: model.PriorityMedium,
		Title:    "Follow up",
	}

	first, err := testDB.CreateTask(ctx, task)
	require.NoError(t, err)

	_, err = testDB.CreateTask(ctx, task)
	assert.ErrorIs(t, err, storage.ErrDuplicateOpenTask)

	// Completing the open task frees the slot.
	already, err := testDB.CompleteTask(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, already)

	_, err = testDB.CreateTask(ctx, task)
	require.NoError(t, err)
}

func TestCreateTaskDifferentTypeSameEntityAllowed(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "task-types")

	_, err := testDB.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &cust.ID,
		Priority:   model.PriorityLow,
		Title:      "Check in",
	})
	require.NoError(t, err)

	_, err = testDB.CreateTask(ctx, model.Task{
		Type:       model.TaskBurnRateAlert,
		CustomerID: &cust.ID,
		Priority:   model.PriorityHigh,
		Title:      "Running low",
	})
	require.NoError(t, err)
}

func TestCreateTasksBatchSkipsConflicts(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "task-batch")
	sampleA := newSample(t, cust.ID, time.Now().UTC().Add(-24*time.Hour))
	sampleB := newSample(t, cust.ID, time.Now().UTC().Add(-48*time.Hour))

	_, err := testDB.CreateTask(ctx, model.Task{
		Type:     model.TaskSampleFollowup,
		SampleID: &sampleA.ID,
		Priority: model.PriorityMedium,
		Title:    "Existing",
	})
	require.NoError(t, err)

	batch := []model.Task{
		{Type: model.TaskSampleFollowup, SampleID: &sampleA.ID, Priority: model.PriorityMedium, Title: "Dup"},
		{Type: model.TaskSampleFollowup, SampleID: &sampleB.ID, Priority: model.PriorityMedium, Title: "New"},
	}
	inserted, err := testDB.CreateTasks(ctx, batch)
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, sampleB.ID, *inserted[0].SampleID)
}

func TestCompleteTaskIdempotent(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "task-complete")

	task, err := testDB.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &cust.ID,
		Priority:   model.PriorityMedium,
		Title:      "Call",
	})
	require.NoError(t, err)

	firstAt := time.Now().UTC().Truncate(time.Millisecond)
	already, err := testDB.CompleteTask(ctx, task.ID, firstAt)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = testDB.CompleteTask(ctx, task.ID, firstAt.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, already)

	got, err := testDB.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(firstAt), "first completion time must be preserved")
}

func TestCompleteTaskNotFound(t *testing.T) {
	_, err := testDB.CompleteTask(context.Background(), uuid.New(), time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCountTriggerTasks(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "trigger-stats")

	def, err := testDB.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "contact cadence",
		Type:       model.TriggerCustomerTiming,
		Conditions: model.TriggerConditions{DaysSinceLastContact: 30},
		IsActive:   true,
	})
	require.NoError(t, err)

	task, err := testDB.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &cust.ID,
		TriggerID:  &def.ID,
		Priority:   model.PriorityMedium,
		Title:      "Check in",
	})
	require.NoError(t, err)

	_, err = testDB.CompleteTask(ctx, task.ID, time.Now().UTC())
	require.NoError(t, err)

	other := newCustomer(t, "trigger-stats-2")
	_, err = testDB.CreateTask(ctx, model.Task{
		Type:       model.TaskCustomerContact,
		CustomerID: &other.ID,
		TriggerID:  &def.ID,
		Priority:   model.PriorityMedium,
		Title:      "Check in",
	})
	require.NoError(t, err)

	stats, err := testDB.CountTriggerTasks(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	cust := newCustomer(t, "snapshot")
	sample := newSample(t, cust.ID, time.Now().UTC().Add(-24*time.Hour))
	order := newOrder(t, cust.ID, model.OrderCompleted, 100)

	def, err := testDB.CreateTrigger(ctx, model.TriggerDefinition{
		Name:       "snap trigger",
		Type:       model.TriggerSampleNoOrder,
		Conditions: model.TriggerConditions{DaysAfterSample: 1},
		IsActive:   true,
	})
	require.NoError(t, err)

	snap, triggers, err := testDB.LoadSnapshot(ctx)
	require.NoError(t, err)

	containsSample := false
	for _, s := range snap.Samples {
		if s.ID == sample.ID {
			containsSample = true
		}
	}
	assert.True(t, containsSample)

	containsOrder := false
	for _, o := range snap.Orders {
		if o.ID == order.ID {
			containsOrder = true
		}
	}
	assert.True(t, containsOrder)

	containsTrigger := false
	for _, d := range triggers {
		assert.True(t, d.IsActive)
		if d.ID == def.ID {
			containsTrigger = true
		}
	}
	assert.True(t, containsTrigger)
}

func TestNotifyRoundTrip(t *testing.T) {
	if !testDB.HasNotifyConn() {
		t.Skip("no notify connection")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, testDB.Listen(ctx, storage.ChannelTasks))
	require.NoError(t, testDB.Notify(ctx, storage.ChannelTasks, "hello"))

	channel, payload, err := testDB.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.ChannelTasks, channel)
	assert.Equal(t, "hello", payload)
}
