package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/models"
	"jjm/store"
)

// Default location for grievances registered without coordinates
const (
	cityCenterLat = 12.9716
	cityCenterLng = 77.5946
)

// GrievanceInput is what a citizen complaint is registered with
type GrievanceInput struct {
	CitizenName string                   `json:"citizen_name"`
	Phone       string                   `json:"phone"`
	Category    models.GrievanceCategory `json:"category"`
	Description string                   `json:"description"`
	Location    models.GrievanceLocation `json:"location"`
	Priority    models.Priority          `json:"priority,omitempty"`
}

// GrievanceUpdate combines an assignment and a status change, as the
// grievance detail form submits them together.
type GrievanceUpdate struct {
	AssignedTo string                 `json:"assigned_to,omitempty"`
	Status     models.GrievanceStatus `json:"status,omitempty"`
}

// GrievanceService runs the complaint workflow on top of the store
type GrievanceService struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewGrievanceService(st store.Store, logger *zap.Logger) *GrievanceService {
	return &GrievanceService{store: st, logger: logger, now: time.Now}
}

// CanTransition reports whether a grievance may move from one status to another
func CanTransition(from, to models.GrievanceStatus) error {
	return models.ValidateTransition(from, to)
}

func invalid(format string, args ...interface{}) error {
	return eris.Wrapf(store.ErrInvalidInput, format, args...)
}

// Register validates a new complaint and stores it as registered
func (s *GrievanceService) Register(ctx context.Context, in GrievanceInput, actor string) (*models.Grievance, error) {
	in.CitizenName = strings.TrimSpace(in.CitizenName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Description = strings.TrimSpace(in.Description)
	in.Location.Address = strings.TrimSpace(in.Location.Address)

	switch {
	case in.CitizenName == "":
		return nil, invalid("citizen name is required")
	case in.Phone == "":
		return nil, invalid("phone is required")
	case !in.Category.Valid():
		return nil, invalid("unknown category %q", in.Category)
	case in.Description == "":
		return nil, invalid("description is required")
	case in.Location.Address == "":
		return nil, invalid("address is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	} else if !in.Priority.Valid() {
		return nil, invalid("unknown priority %q", in.Priority)
	}
	if in.Location.Lat == 0 && in.Location.Lng == 0 {
		in.Location.Lat, in.Location.Lng = cityCenterLat, cityCenterLng
	}

	now := s.now()
	created, err := s.store.CreateGrievance(ctx, &models.Grievance{
		CitizenName: in.CitizenName,
		Phone:       in.Phone,
		Category:    in.Category,
		Description: in.Description,
		Location:    in.Location,
		Status:      models.GrievanceRegistered,
		Priority:    in.Priority,
		CreatedAt:   now,
		Timeline:    []models.TimelineEvent{{Status: models.GrievanceRegistered, Timestamp: now, By: actor}},
		Comments:    []models.Comment{},
	})
	if created == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("Grievance registered but not persisted", zap.String("grievance_id", created.ID), zap.Error(err))
	}

	s.logger.Info("Grievance registered",
		zap.String("grievance_id", created.ID),
		zap.String("category", string(created.Category)),
		zap.String("priority", string(created.Priority)))
	s.activity(ctx, models.ActivityGrievance,
		fmt.Sprintf("New grievance %s registered: %s - %s", created.ID, created.Category.Label(), created.Location.Address), now)

	return created, nil
}

// Assign sets the engineer. A registered grievance moves to assigned.
func (s *GrievanceService) Assign(ctx context.Context, id, engineer, actor string) (*models.Grievance, error) {
	if strings.TrimSpace(engineer) == "" {
		return nil, invalid("engineer is required")
	}
	return s.Update(ctx, id, GrievanceUpdate{AssignedTo: engineer}, actor)
}

// Transition moves a grievance one step along the workflow
func (s *GrievanceService) Transition(ctx context.Context, id string, to models.GrievanceStatus, actor string) (*models.Grievance, error) {
	if to == "" {
		return nil, invalid("status is required")
	}
	return s.Update(ctx, id, GrievanceUpdate{Status: to}, actor)
}

// Update applies an assignment and then a status change in one commit.
// ErrNoChange is returned when neither changes anything.
func (s *GrievanceService) Update(ctx context.Context, id string, upd GrievanceUpdate, actor string) (*models.Grievance, error) {
	upd.AssignedTo = strings.TrimSpace(upd.AssignedTo)
	now := s.now()

	var (
		before   models.GrievanceStatus
		assigned bool
	)
	updated, err := s.store.UpdateGrievance(ctx, id, func(g *models.Grievance) error {
		before = g.Status
		changed := false

		if upd.AssignedTo != "" && upd.AssignedTo != g.AssignedTo {
			g.AssignedTo = upd.AssignedTo
			assigned = true
			if g.Status == models.GrievanceRegistered {
				if err := g.Advance(models.GrievanceAssigned, actor, now); err != nil {
					return err
				}
			}
			changed = true
		}

		if upd.Status != "" && upd.Status != g.Status {
			if err := g.Advance(upd.Status, actor, now); err != nil {
				return err
			}
			changed = true
		}

		if !changed {
			return models.ErrNoChange
		}
		return nil
	})
	if updated == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("Grievance updated but not persisted", zap.String("grievance_id", id), zap.Error(err))
	}

	s.logger.Info("Grievance updated",
		zap.String("grievance_id", id),
		zap.String("from", string(before)),
		zap.String("to", string(updated.Status)),
		zap.String("assigned_to", updated.AssignedTo))

	if assigned {
		s.activity(ctx, models.ActivityMaintenance,
			fmt.Sprintf("Grievance %s assigned to %s", id, updated.AssignedTo), now)
	}
	if before != models.GrievanceResolved && updated.Status == models.GrievanceResolved {
		s.activity(ctx, models.ActivityResolved,
			fmt.Sprintf("Grievance %s resolved - %s", id, updated.Location.Address), now)
	}
	return updated, nil
}

// Comment appends a non-blank comment
func (s *GrievanceService) Comment(ctx context.Context, id, text, actor string) (*models.Grievance, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("comment text is required")
	}

	updated, err := s.store.UpdateGrievance(ctx, id, func(g *models.Grievance) error {
		g.Comments = append(g.Comments, models.Comment{Text: text, By: actor, Timestamp: s.now()})
		return nil
	})
	if updated == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("Comment added but not persisted", zap.String("grievance_id", id), zap.Error(err))
	}
	return updated, nil
}

func (s *GrievanceService) activity(ctx context.Context, kind models.ActivityKind, text string, at time.Time) {
	if err := s.store.AddActivity(ctx, models.NewActivity(uuid.NewString(), kind, text, at)); err != nil {
		s.logger.Warn("Failed to record activity", zap.Error(err))
	}
}
