package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/safar/stationery-pos/internal/config"
	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/logger"
	"github.com/safar/stationery-pos/internal/migration"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		os.Stderr.WriteString("Usage: go run scripts/run_migrations.go [up|down|version]\n")
		os.Exit(2)
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" && direction != "version" {
		os.Stderr.WriteString("Direction must be 'up', 'down' or 'version'\n")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		os.Stderr.WriteString("Build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Exit(log, "connect to database", err)
	}

	err = migrate(db, direction, log)
	db.Close()
	if err != nil {
		logger.Exit(log, "run migrations", err, zap.String("direction", direction))
	}
	_ = log.Sync()
}

func migrate(db *sql.DB, direction string, log *zap.Logger) error {
	var err error
	switch direction {
	case "up":
		err = migration.Up(db)
	case "down":
		err = migration.Down(db)
	}
	if err != nil {
		return err
	}

	version, dirty, err := migration.Version(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info("schema version", zap.String("direction", direction), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
