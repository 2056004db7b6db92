package report

import (
	"context"
	"sort"

	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/purchase"
	"github.com/bodybiz/backend/team"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TrainerRow is one trainer's aggregate for the reporting window
type TrainerRow struct {
	TrainerID       string          `json:"trainerId"`
	TrainerName     string          `json:"trainerName"`
	Role            auth.Role       `json:"role"`
	CommissionRate  decimal.Decimal `json:"commissionRate"`
	Revenue         decimal.Decimal `json:"revenue"`
	TrainerEarnings decimal.Decimal `json:"trainerEarnings"`
	OwnerEarnings   decimal.Decimal `json:"ownerEarnings"`
	PurchaseCount   int             `json:"purchaseCount"`
	ClientCount     int             `json:"clientCount"`
}

// Totals aggregates the whole reporting window
type Totals struct {
	Revenue         decimal.Decimal `json:"revenue"`
	TrainerEarnings decimal.Decimal `json:"trainerEarnings"`
	OwnerEarnings   decimal.Decimal `json:"ownerEarnings"`
	PurchaseCount   int             `json:"purchaseCount"`
}

// CommissionReport is the commission breakdown for a reporting window
type CommissionReport struct {
	Period string       `json:"period"`
	Rows   []TrainerRow `json:"rows"`
	Totals Totals       `json:"totals"`
}

// Manager builds reports from the purchase ledger
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for reports. It owns no tables; it reads
// the ledger that purchase.Manager migrated
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// paidStatuses are the lifecycle states that count toward payouts. Pending,
// paused, failed, and cancelled purchases are all excluded until they settle
var paidStatuses = []purchase.Status{
	purchase.StatusActive,
	purchase.StatusCompleted,
}

// Commissions aggregates the stamped splits per trainer for the window,
// sorted by revenue descending. Sums keep full precision; the stamped
// amounts were already rounded to cents when the sale was made
func (m *Manager) Commissions(ctx context.Context, period Period, trainerID string) (*CommissionReport, error) {
	baseQuery := m.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", period.Start, period.End).
		Where("status IN ?", paidStatuses)
	if len(trainerID) > 0 {
		baseQuery = baseQuery.Where("trainer_id = ?", trainerID)
	}

	purchases := make([]purchase.Purchase, 0, 64)
	result := baseQuery.Find(&purchases)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot load purchases for report")
	}

	members, err := m.trainerIndex(ctx)
	if err != nil {
		return nil, err
	}

	byTrainer := make(map[string]*TrainerRow)
	clientSets := make(map[string]map[string]struct{})
	totals := Totals{
		Revenue:         decimal.Zero,
		TrainerEarnings: decimal.Zero,
		OwnerEarnings:   decimal.Zero,
	}
	for _, p := range purchases {
		row, ok := byTrainer[p.TrainerID]
		if !ok {
			row = &TrainerRow{
				TrainerID:       p.TrainerID,
				Revenue:         decimal.Zero,
				TrainerEarnings: decimal.Zero,
				OwnerEarnings:   decimal.Zero,
			}
			if member, ok := members[p.TrainerID]; ok {
				row.TrainerName = member.Name
				row.Role = member.Role
				row.CommissionRate = member.CommissionRate
			}
			byTrainer[p.TrainerID] = row
			clientSets[p.TrainerID] = make(map[string]struct{})
		}
		row.Revenue = row.Revenue.Add(p.Amount)
		row.TrainerEarnings = row.TrainerEarnings.Add(p.TrainerAmount)
		row.OwnerEarnings = row.OwnerEarnings.Add(p.OwnerAmount)
		row.PurchaseCount++
		clientSets[p.TrainerID][p.ClientID] = struct{}{}

		totals.Revenue = totals.Revenue.Add(p.Amount)
		totals.TrainerEarnings = totals.TrainerEarnings.Add(p.TrainerAmount)
		totals.OwnerEarnings = totals.OwnerEarnings.Add(p.OwnerAmount)
		totals.PurchaseCount++
	}

	rows := make([]TrainerRow, 0, len(byTrainer))
	for id, row := range byTrainer {
		row.ClientCount = len(clientSets[id])
		// accumulation kept full precision; round once at presentation
		row.Revenue = row.Revenue.Round(2)
		row.TrainerEarnings = row.TrainerEarnings.Round(2)
		row.OwnerEarnings = row.OwnerEarnings.Round(2)
		rows = append(rows, *row)
	}
	totals.Revenue = totals.Revenue.Round(2)
	totals.TrainerEarnings = totals.TrainerEarnings.Round(2)
	totals.OwnerEarnings = totals.OwnerEarnings.Round(2)
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Revenue.Equal(rows[j].Revenue) {
			return rows[i].Revenue.GreaterThan(rows[j].Revenue)
		}
		return rows[i].TrainerName < rows[j].TrainerName
	})

	return &CommissionReport{
		Period: period.Label(),
		Rows:   rows,
		Totals: totals,
	}, nil
}

func (m *Manager) trainerIndex(ctx context.Context) (map[string]team.Member, error) {
	members := make([]team.Member, 0, 16)
	result := m.db.WithContext(ctx).Find(&members)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot load team members for report")
	}
	index := make(map[string]team.Member, len(members))
	for _, member := range members {
		index[member.ID] = member
	}
	return index, nil
}
