package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/lexportal/claimshield/pkg/domain/security"
)

type securityEventRepository struct {
	db *gorm.DB
}

// NewSecurityEventRepository returns the append-only audit sink.
func NewSecurityEventRepository(db *gorm.DB) security.Repository {
	return &securityEventRepository{db: db}
}

func (r *securityEventRepository) Insert(ctx context.Context, event *security.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}
