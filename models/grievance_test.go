package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to GrievanceStatus
		wantErr  error
	}{
		{GrievanceRegistered, GrievanceAssigned, nil},
		{GrievanceAssigned, GrievanceInProgress, nil},
		{GrievanceInProgress, GrievanceResolved, nil},
		{GrievanceRegistered, GrievanceResolved, ErrIllegalTransition},
		{GrievanceRegistered, GrievanceInProgress, ErrIllegalTransition},
		{GrievanceResolved, GrievanceRegistered, ErrIllegalTransition},
		{GrievanceInProgress, GrievanceAssigned, ErrIllegalTransition},
		{GrievanceAssigned, "closed", ErrIllegalTransition},
		{GrievanceAssigned, GrievanceAssigned, ErrNoChange},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransitionErrorCarriesStates(t *testing.T) {
	err := ValidateTransition(GrievanceResolved, GrievanceAssigned)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, GrievanceResolved, te.From)
	assert.Equal(t, GrievanceAssigned, te.To)
	assert.Contains(t, err.Error(), "resolved -> assigned")
}

func TestGrievance_AdvanceKeepsTimelineConsistent(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	g := &Grievance{
		ID:       "GRV0001",
		Status:   GrievanceRegistered,
		Timeline: []TimelineEvent{{Status: GrievanceRegistered, Timestamp: start, By: "Citizen"}},
	}

	require.NoError(t, g.Advance(GrievanceAssigned, "Admin", start.Add(30*time.Minute)))
	require.NoError(t, g.Advance(GrievanceInProgress, "Engineer 1", start.Add(2*time.Hour)))
	assert.ErrorIs(t, g.Advance(GrievanceRegistered, "Admin", start.Add(3*time.Hour)), ErrIllegalTransition)
	require.NoError(t, g.Advance(GrievanceResolved, "Engineer 1", start.Add(24*time.Hour)))

	require.Len(t, g.Timeline, 4)
	assert.Equal(t, g.Status, g.Timeline[len(g.Timeline)-1].Status)

	d, ok := g.ResolutionDuration()
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)
	assert.False(t, g.Open())
}

func TestGrievance_ResolutionDurationRequiresHistory(t *testing.T) {
	g := &Grievance{Status: GrievanceResolved, Timeline: []TimelineEvent{{Status: GrievanceResolved}}}
	_, ok := g.ResolutionDuration()
	assert.False(t, ok)

	open := &Grievance{Status: GrievanceAssigned}
	_, ok = open.ResolutionDuration()
	assert.False(t, ok)
}

func TestGrievance_CloneIsDeep(t *testing.T) {
	g := &Grievance{Comments: []Comment{{Text: "a"}}, Timeline: []TimelineEvent{{Status: GrievanceRegistered}}}
	c := g.Clone()
	c.Comments[0].Text = "b"
	c.Timeline = append(c.Timeline, TimelineEvent{Status: GrievanceAssigned})

	assert.Equal(t, "a", g.Comments[0].Text)
	assert.Len(t, g.Timeline, 1)
}

func TestGrievanceCategory(t *testing.T) {
	assert.True(t, CategoryNoWater.Valid())
	assert.False(t, GrievanceCategory("noise").Valid())
	assert.Equal(t, "No Water", CategoryNoWater.Label())
	assert.True(t, PriorityLow.Valid())
	assert.False(t, Priority("urgent").Valid())
}
