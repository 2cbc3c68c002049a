package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"bizdesk/internal/models"
)

// Migrate ensures the tables used by the recurring engine and the job and
// invoice domains exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		// Recurring engine
		&models.RecurringSchedule{},
		&models.RecurringScheduleItem{},
		&models.RecurringJobHistory{},
		// Domains the engine writes into
		&models.Job{},
		&models.Invoice{},
		&models.InvoiceItem{},
		// Outbox
		&models.CronJob{},
	}
}
