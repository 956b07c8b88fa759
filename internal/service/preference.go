package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heraldhq/herald/internal/domain"
	"github.com/heraldhq/herald/internal/repository"
	apperrors "github.com/heraldhq/herald/pkg/errors"
)

// PreferenceService implements the business logic for user preferences.
type PreferenceService struct {
	repo   repository.PreferenceRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewPreferenceService creates a new preference service.
func NewPreferenceService(repo repository.PreferenceRepository, logger *slog.Logger) *PreferenceService {
	return &PreferenceService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetPreference returns the user's stored preference, or the default when
// none exists. It never returns not-found.
func (s *PreferenceService) GetPreference(ctx context.Context, tenantID, userID string) (*domain.Preference, error) {
	pref, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.DefaultPreference(tenantID, userID), nil
		}
		return nil, err
	}
	return pref, nil
}

// UpdatePreference validates and stores the user's preference.
func (s *PreferenceService) UpdatePreference(ctx context.Context, tenantID, userID string, pref *domain.Preference) (*domain.Preference, error) {
	pref.TenantID = tenantID
	pref.UserID = userID
	pref.UpdatedAt = s.now()

	if err := validatePreference(pref); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := s.repo.Upsert(ctx, pref); err != nil {
		return nil, apperrors.Wrap(err, "update preference")
	}

	s.logger.InfoContext(ctx, "preference updated",
		slog.String("user_id", userID),
		slog.Bool("dnd_enabled", pref.DoNotDisturb.Enabled),
	)
	return pref, nil
}

func validatePreference(p *domain.Preference) error {
	if p.DoNotDisturb.Enabled {
		if !validHHMM(p.DoNotDisturb.StartTime) {
			return fmt.Errorf("do_not_disturb.start_time must be HH:MM")
		}
		if !validHHMM(p.DoNotDisturb.EndTime) {
			return fmt.Errorf("do_not_disturb.end_time must be HH:MM")
		}
		for _, d := range p.DoNotDisturb.Days {
			if d < 0 || d > 6 {
				return fmt.Errorf("do_not_disturb.days entries must be 0 through 6")
			}
		}
	}
	for t, ov := range p.TypeOverrides {
		if !domain.IsValidType(string(t)) {
			return fmt.Errorf("invalid notification type %q in type_overrides", t)
		}
		for _, ch := range ov.Channels {
			if !domain.IsValidChannel(string(ch)) {
				return fmt.Errorf("invalid channel %q in type_overrides[%s]", ch, t)
			}
		}
	}
	return nil
}

func validHHMM(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return h <= 23 && m <= 59
}
