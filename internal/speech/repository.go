package speech

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunRepository defines persistence operations for run metadata.
type RunRepository interface {
	Create(ctx context.Context, record *RunRecord) error
	Count(ctx context.Context, status string) (int64, error)
}

// GormRunRepository persists run records using a Gorm database connection.
type GormRunRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRunRepository constructs a Gorm-backed repository implementation.
func NewRunRepository(db *gorm.DB, logger *logrus.Logger) (*GormRunRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormRunRepository{db: db, logger: logger}, nil
}

var _ RunRepository = (*GormRunRepository)(nil)

// Create stores record, assigning an ID and timestamp when missing.
func (r *GormRunRepository) Create(ctx context.Context, record *RunRecord) error {
	if record == nil {
		return eris.New("run record is nil")
	}

	record.Status = strings.TrimSpace(record.Status)
	if record.Status == "" {
		return eris.New("run status is required")
	}

	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		r.logError(logrus.Fields{"run_id": record.ID}, err, "creating run record")
		return eris.Wrapf(err, "creating run record: %s", record.ID)
	}

	return nil
}

// Count returns the number of stored runs with status, or all runs when status is empty.
func (r *GormRunRepository) Count(ctx context.Context, status string) (int64, error) {
	var count int64

	query := r.db.WithContext(ctx).Model(&RunRecord{})
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		query = query.Where("status = ?", trimmed)
	}

	if err := query.Count(&count).Error; err != nil {
		r.logError(logrus.Fields{"status": status}, err, "counting run records")
		return 0, eris.Wrap(err, "counting run records")
	}

	return count, nil
}

func (r *GormRunRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil || err == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
