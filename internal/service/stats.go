package service

import (
	"context"

	"github.com/heraldhq/herald/internal/domain"
)

// Stats summarizes a tenant's notification and delivery volumes.
type Stats struct {
	Total        int                               `json:"total"`
	Unread       int                               `json:"unread"`
	ByStatus     map[domain.NotificationStatus]int `json:"by_status"`
	ByPriority   map[domain.Priority]int           `json:"by_priority"`
	Deliveries   map[domain.DeliveryStatus]int     `json:"deliveries"`
	DeliveryRate float64                           `json:"delivery_rate"`
}

// GetStats aggregates counts across notifications and deliveries. The
// delivery rate counts delivered (and subsequently read) deliveries against
// every delivery attempted, so in-flight deliveries drag the rate down until
// they land.
func (s *NotificationService) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	byStatus, err := s.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byPriority, err := s.repo.CountByPriority(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	deliveryCounts, err := s.deliveries.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus:   byStatus,
		ByPriority: byPriority,
		Deliveries: deliveryCounts,
	}
	for status, count := range byStatus {
		stats.Total += count
		if status != domain.NotificationRead && status != domain.NotificationArchived {
			stats.Unread += count
		}
	}

	succeeded := deliveryCounts[domain.DeliveryDelivered] + deliveryCounts[domain.DeliveryRead]
	totalDeliveries := 0
	for _, count := range deliveryCounts {
		totalDeliveries += count
	}
	if totalDeliveries > 0 {
		stats.DeliveryRate = float64(succeeded) / float64(totalDeliveries)
	}

	return stats, nil
}
