package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"bandalloc/pkg/bands"
)

// RunReport prints per-zone totals for userID ("all" for everyone) and,
// when list is set, every matching entry in band order.
func RunReport(ctx context.Context, w io.Writer, svc *bands.Service, userID string, list bool) error {
	sum, err := svc.Summary(ctx, userID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Report for user=%s:\n", sum.UserID)
	for _, z := range sum.Zones {
		fmt.Fprintf(w, "  zone=%s bands=%d total_amount=%s\n", z.Zone, z.Count, z.TotalAmount.StringFixed(2))
	}
	fmt.Fprintf(w, "  bands=%d total_amount=%s\n", sum.Count, sum.TotalAmount.StringFixed(2))

	if list {
		entries, err := svc.List(ctx, bands.ListQuery{UserID: sum.UserID, Sort: bands.SortBand})
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%d|%s|%s|%s|%s|%s|%s\n", e.BandNo, e.UserID, e.Name, e.Zone, e.Community, e.Amount.StringFixed(2), e.CreatedAt.Format(time.RFC3339))
		}
	}
	return nil
}
