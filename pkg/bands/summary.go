package bands

import (
	"context"
	"fmt"
	"strings"

	"bandalloc/models"

	"github.com/shopspring/decimal"
)

type ZoneSummary struct {
	Zone        string          `json:"zone"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type Summary struct {
	UserID      string          `json:"userId"`
	Zones       []ZoneSummary   `json:"zones"`
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// Summary totals entries and amounts per zone for one user, or for everyone
// when userID is empty or AllUsers.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = AllUsers
	}
	q := s.db.WithContext(ctx).Model(&models.Entry{})
	if userID != AllUsers {
		q = q.Where("user_id = ?", userID)
	}
	zones := []ZoneSummary{}
	err := q.Select("zone, count(*) AS count, coalesce(sum(amount), 0) AS total_amount").
		Group("zone").
		Order("zone").
		Scan(&zones).Error
	if err != nil {
		return Summary{}, fmt.Errorf("summarise entries: %w", err)
	}
	out := Summary{UserID: userID, Zones: zones, TotalAmount: decimal.Zero}
	for _, z := range zones {
		out.Count += z.Count
		out.TotalAmount = out.TotalAmount.Add(z.TotalAmount)
	}
	return out, nil
}
