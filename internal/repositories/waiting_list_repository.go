package repositories

import (
	"context"

	"github.com/mypov/backend/internal/models"
)

// WaitingListRepository stores early-access signups.
type WaitingListRepository interface {
	Add(ctx context.Context, email string) (models.WaitingListEntry, bool, error)
	List(ctx context.Context, skip, limit int) ([]models.WaitingListEntry, error)
}
