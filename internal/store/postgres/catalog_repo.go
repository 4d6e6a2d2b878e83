package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"glowdesk/backend/internal/domain"
	"glowdesk/backend/internal/service/scheduling"
	"glowdesk/backend/internal/store"
)

// serviceRow is a row of the tenant's service catalog.
type serviceRow struct {
	bun.BaseModel `bun:"table:services"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	TenantID        string    `bun:"tenant_id,notnull"`
	Name            string    `bun:"name,notnull"`
	DurationMinutes int       `bun:"duration_minutes,notnull"`
	PriceCents      int64     `bun:"price_cents,notnull"`
	Active          bool      `bun:"active,notnull"`
}

type CatalogRepo struct {
	db *bun.DB
}

func NewCatalogRepo(db *bun.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) ResolveServices(ctx context.Context, tenantID string, selections []scheduling.ServiceSelection) ([]domain.AppointmentService, error) {
	if len(selections) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(selections))
	for _, sel := range selections {
		ids = append(ids, sel.ServiceID)
	}

	var rows []serviceRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("id IN (?)", bun.In(ids)).
		Where("active").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]serviceRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	out := make([]domain.AppointmentService, 0, len(selections))
	for _, sel := range selections {
		row, ok := byID[sel.ServiceID]
		if !ok {
			return nil, fmt.Errorf("service %s: %w", sel.ServiceID, store.ErrNotFound)
		}
		qty := sel.Quantity
		if qty < 1 {
			qty = 1
		}
		out = append(out, domain.AppointmentService{
			ServiceID:       row.ID,
			Name:            row.Name,
			DurationMinutes: row.DurationMinutes,
			PriceCents:      row.PriceCents,
			Quantity:        qty,
		})
	}
	return out, nil
}
