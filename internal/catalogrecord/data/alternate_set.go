package data

import (
	"context"
	"fmt"
	"time"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
)

// AlternateSetRepo stores alternate record sets
type AlternateSetRepo struct {
	db *database.DB
}

func NewAlternateSetRepo(db *database.DB) *AlternateSetRepo {
	return &AlternateSetRepo{db: db}
}

var _ biz.AlternateSetRepo = (*AlternateSetRepo)(nil)

func (r *AlternateSetRepo) Create(ctx context.Context) (int64, error) {
	po := &AlternateRecordSetPO{CreatedAt: time.Now().UTC()}
	if err := r.db.Conn(ctx).Create(po).Error; err != nil {
		return 0, fmt.Errorf("failed to create alternate record set: %w", err)
	}
	return po.ID, nil
}

func (r *AlternateSetRepo) Delete(ctx context.Context, id int64) error {
	if err := r.db.Conn(ctx).Where("id = ?", id).Delete(&AlternateRecordSetPO{}).Error; err != nil {
		return fmt.Errorf("failed to delete alternate record set: %w", err)
	}
	return nil
}
