package subscribers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/growsome/trafficlens/internal/domain/stats"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
)

const utf8BOM = "\ufeff"

var exportHeader = []string{
	"ID", "Site Name", "Domain", "Country", "City",
	"Subscribed At", "Last Seen At", "Notifications", "Status", "User Agent",
}

func exportRecord(r subscriber.ExportRow) []string {
	status := "inactive"
	if r.Active {
		status = "active"
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.SiteName,
		r.DomainName,
		r.Country,
		r.City,
		r.SubscribedAt.UTC().Format(stats.DayLayout),
		r.LastSeenAt.UTC().Format(stats.DayLayout),
		strconv.FormatInt(r.NotificationCount, 10),
		status,
		r.UserAgent,
	}
}

// Export streams the owner's subscribers matching f as BOM-prefixed CSV.
func (u *Usecase) Export(ctx context.Context, f subscriber.Filter, w io.Writer) error {
	if err := u.ownDomainFilter(ctx, f.OwnerID, f.DomainID); err != nil {
		return err
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	err := u.subs.Export(ctx, f, func(r subscriber.ExportRow) error {
		return cw.Write(exportRecord(r))
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
