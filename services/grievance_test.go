package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jjm/models"
	"jjm/store"
)

func newTestGrievanceService(t *testing.T) (*GrievanceService, *store.MemoryStore) {
	t.Helper()
	st := newServiceStore(t, store.Dataset{
		Grievances: []*models.Grievance{
			{
				ID: "GRV0002", Status: models.GrievanceRegistered, Category: models.CategoryLeakage,
				Priority: models.PriorityHigh, CreatedAt: testNow,
				Location: models.GrievanceLocation{Address: "Hebbal"},
				Timeline: []models.TimelineEvent{{Status: models.GrievanceRegistered, Timestamp: testNow, By: "System"}},
			},
			{
				ID: "GRV0001", Status: models.GrievanceInProgress, Category: models.CategoryQuality,
				Priority: models.PriorityLow, AssignedTo: "Engineer Rao", CreatedAt: testNow.Add(-48 * time.Hour),
				Location: models.GrievanceLocation{Address: "Jayanagar"},
				Timeline: []models.TimelineEvent{
					{Status: models.GrievanceRegistered, Timestamp: testNow.Add(-48 * time.Hour)},
					{Status: models.GrievanceAssigned, Timestamp: testNow.Add(-47 * time.Hour)},
					{Status: models.GrievanceInProgress, Timestamp: testNow.Add(-46 * time.Hour)},
				},
			},
		},
	})
	svc := NewGrievanceService(st, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, st
}

func validInput() GrievanceInput {
	return GrievanceInput{
		CitizenName: "Asha",
		Phone:       "+91 98450 00000",
		Category:    models.CategoryNoWater,
		Description: "No supply since morning",
		Location:    models.GrievanceLocation{Address: "MG Road"},
	}
}

func TestCanTransition(t *testing.T) {
	assert.NoError(t, CanTransition(models.GrievanceRegistered, models.GrievanceAssigned))
	assert.NoError(t, CanTransition(models.GrievanceInProgress, models.GrievanceResolved))
	assert.ErrorIs(t, CanTransition(models.GrievanceRegistered, models.GrievanceResolved), models.ErrIllegalTransition)
	assert.ErrorIs(t, CanTransition(models.GrievanceResolved, models.GrievanceInProgress), models.ErrIllegalTransition)
	assert.ErrorIs(t, CanTransition(models.GrievanceAssigned, models.GrievanceAssigned), models.ErrNoChange)
}

func TestGrievance_Register(t *testing.T) {
	svc, st := newTestGrievanceService(t)

	g, err := svc.Register(context.Background(), validInput(), "Operator")
	require.NoError(t, err)
	assert.Equal(t, "GRV0003", g.ID)
	assert.Equal(t, models.GrievanceRegistered, g.Status)
	assert.Equal(t, models.PriorityMedium, g.Priority)
	assert.Equal(t, testNow, g.CreatedAt)
	require.Len(t, g.Timeline, 1)
	assert.Equal(t, "Operator", g.Timeline[0].By)
	assert.Equal(t, cityCenterLat, g.Location.Lat)

	all := st.Grievances(models.GrievanceFilter{})
	assert.Equal(t, "GRV0003", all[0].ID, "new grievances come first")

	activities := st.Activities(0)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityGrievance, activities[0].Kind)
	assert.Contains(t, activities[0].Text, "GRV0003")
}

func TestGrievance_RegisterValidates(t *testing.T) {
	svc, _ := newTestGrievanceService(t)

	tests := map[string]func(in *GrievanceInput){
		"missing name":     func(in *GrievanceInput) { in.CitizenName = " " },
		"missing phone":    func(in *GrievanceInput) { in.Phone = "" },
		"unknown category": func(in *GrievanceInput) { in.Category = "theft" },
		"missing text":     func(in *GrievanceInput) { in.Description = "" },
		"missing address":  func(in *GrievanceInput) { in.Location.Address = "" },
		"unknown priority": func(in *GrievanceInput) { in.Priority = "urgent" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := svc.Register(context.Background(), in, "Operator")
			assert.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}
}

func TestGrievance_AssignAdvancesRegistered(t *testing.T) {
	svc, st := newTestGrievanceService(t)
	ctx := context.Background()

	g, err := svc.Assign(ctx, "GRV0002", "Engineer Kumar", "Supervisor")
	require.NoError(t, err)
	assert.Equal(t, "Engineer Kumar", g.AssignedTo)
	assert.Equal(t, models.GrievanceAssigned, g.Status)
	require.Len(t, g.Timeline, 2)
	assert.Equal(t, models.GrievanceAssigned, g.Timeline[1].Status)
	assert.Equal(t, "Supervisor", g.Timeline[1].By)

	_, err = svc.Assign(ctx, "GRV0002", "Engineer Kumar", "Supervisor")
	assert.ErrorIs(t, err, models.ErrNoChange)

	// reassignment does not move an in-progress grievance
	g, err = svc.Assign(ctx, "GRV0001", "Engineer Das", "Supervisor")
	require.NoError(t, err)
	assert.Equal(t, models.GrievanceInProgress, g.Status)
	assert.Len(t, g.Timeline, 3)

	assert.Len(t, st.Activities(0), 2)
}

func TestGrievance_AssignRequiresEngineer(t *testing.T) {
	svc, st := newTestGrievanceService(t)

	for _, engineer := range []string{"", "   "} {
		_, err := svc.Assign(context.Background(), "GRV0002", engineer, "Supervisor")
		assert.ErrorIs(t, err, store.ErrInvalidInput)
	}
	g, err := st.Grievance("GRV0002")
	require.NoError(t, err)
	assert.Equal(t, models.GrievanceRegistered, g.Status)
	assert.Empty(t, st.Activities(0))
}

func TestGrievance_UpdateLogsOnlyRealReassignment(t *testing.T) {
	svc, st := newTestGrievanceService(t)

	// same engineer, status moves on
	g, err := svc.Update(context.Background(), "GRV0001",
		GrievanceUpdate{AssignedTo: "Engineer Rao", Status: models.GrievanceResolved}, "Supervisor")
	require.NoError(t, err)
	assert.Equal(t, models.GrievanceResolved, g.Status)

	activities := st.Activities(0)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityResolved, activities[0].Kind)
}

func TestGrievance_TransitionFollowsWorkflow(t *testing.T) {
	svc, st := newTestGrievanceService(t)
	ctx := context.Background()

	_, err := svc.Transition(ctx, "GRV0002", models.GrievanceResolved, "Supervisor")
	require.Error(t, err)
	var te *models.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.GrievanceRegistered, te.From)

	unchanged, err := st.Grievance("GRV0002")
	require.NoError(t, err)
	assert.Equal(t, models.GrievanceRegistered, unchanged.Status)
	assert.Len(t, unchanged.Timeline, 1)

	_, err = svc.Transition(ctx, "GRV0001", models.GrievanceInProgress, "Supervisor")
	assert.ErrorIs(t, err, models.ErrNoChange)

	g, err := svc.Transition(ctx, "GRV0001", models.GrievanceResolved, "Supervisor")
	require.NoError(t, err)
	assert.Equal(t, models.GrievanceResolved, g.Status)
	assert.Equal(t, g.Status, g.Timeline[len(g.Timeline)-1].Status)

	activities := st.Activities(0)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityResolved, activities[0].Kind)

	_, err = svc.Transition(ctx, "GRV0404", models.GrievanceAssigned, "Supervisor")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Transition(ctx, "GRV0001", "", "Supervisor")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestGrievance_Comment(t *testing.T) {
	svc, _ := newTestGrievanceService(t)
	ctx := context.Background()

	_, err := svc.Comment(ctx, "GRV0002", "   ", "Operator")
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	g, err := svc.Comment(ctx, "GRV0002", " Crew dispatched ", "Operator")
	require.NoError(t, err)
	require.Len(t, g.Comments, 1)
	assert.Equal(t, "Crew dispatched", g.Comments[0].Text)
	assert.Equal(t, "Operator", g.Comments[0].By)
	assert.Equal(t, testNow, g.Comments[0].Timestamp)
}
