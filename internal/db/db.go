package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-ledger-backend/config"
	"asset-ledger-backend/internal/model"
)

// Init connects to the remote record store and runs migrations. channel is
// the NOTIFY channel name the change-feed trigger publishes on.
func Init(cfg *config.RemoteStoreConfig, channel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.Asset{},
		&model.AssetAttachment{},
		&model.PushSubscription{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if err := applyChangeFeedDDL(db, channel); err != nil {
		// The sync loop falls back to polling without the trigger.
		log.Printf("Warning: failed to install the change-feed trigger: %v. Viewers will rely on polling.", err)
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// applyChangeFeedDDL installs the trigger that turns every assets write into
// a NOTIFY on the configured channel.
func applyChangeFeedDDL(db *gorm.DB, channel string) error {
	ddls := []string{
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION notify_asset_change() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('%s', json_build_object('op', TG_OP, 'id', COALESCE(NEW.id, OLD.id))::text);
  RETURN COALESCE(NEW, OLD);
END;
$$ LANGUAGE plpgsql;`, channel),
		"DROP TRIGGER IF EXISTS assets_notify_change ON assets;",
		"CREATE TRIGGER assets_notify_change AFTER INSERT OR UPDATE OR DELETE ON assets " +
			"FOR EACH ROW EXECUTE FUNCTION notify_asset_change();",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
