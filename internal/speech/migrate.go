package speech

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the run record schema using Gorm's AutoMigrate and logs progress.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "speech.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying speech run schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&RunRecord{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("speech run schema migration failed")
		}
		return eris.Wrap(err, "auto migrating speech run schema")
	}

	if logger != nil {
		logger.WithFields(logFields).Info("speech run schema migration complete")
	}

	return nil
}
