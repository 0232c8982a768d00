package database

import (
	"context"

	"github.com/sipdeck/sipdeck/internal/database/models"
)

// CallListFilter specifies filtering and pagination for call history queries.
type CallListFilter struct {
	Limit     int
	Offset    int
	Search    string // matches remote_uri
	Direction string // "inbound", "outbound", or "" for all
	StartDate string // RFC3339 or YYYY-MM-DD
	EndDate   string // RFC3339 or YYYY-MM-DD
}

// CallRepository manages the call history.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id int64) (*models.Call, error)
	GetByCallID(ctx context.Context, callID string) (*models.Call, error)
	List(ctx context.Context, filter CallListFilter) ([]models.Call, int, error)
	ListRecent(ctx context.Context, limit int) ([]models.Call, error)
	SetTranscript(ctx context.Context, id int64, transcript string) error
	SetSentiment(ctx context.Context, id int64, sentiment string) error
	SetSummary(ctx context.Context, id int64, summary string) error
	SetAnalyticsState(ctx context.Context, id int64, state string) error
	CountByDirection(ctx context.Context) (map[string]int64, error)
	DeleteExpiredRecordings(ctx context.Context, days int) ([]string, error)
	Delete(ctx context.Context, id int64) error
}

// ContactRepository manages the address book.
type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	GetByURI(ctx context.Context, uri string) (*models.Contact, error)
	List(ctx context.Context) ([]models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, id int64) error
}

// AdminUserRepository manages control API accounts.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Update(ctx context.Context, user *models.AdminUser) error
	Count(ctx context.Context) (int64, error)
}
