package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/tenancy"
	"github.com/smallbiznis/rukun/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, scope tenancy.Scope, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, scope tenancy.Scope, filter ListFilter, page pagination.Pagination) ([]*AuditLog, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)

// Record writes an entry on behalf of a principal. Failures are logged by the
// service and never abort the caller.
func Record(ctx context.Context, svc Service, principal tenancy.Principal, tenantID *snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	if svc == nil {
		return
	}
	actorID := principal.ActorID()
	var target *string
	if targetID != "" {
		target = &targetID
	}
	_ = svc.AuditLog(ctx, tenantID, principal.ActorType(), &actorID, action, targetType, target, metadata)
}
