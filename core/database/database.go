package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func timeoutOf(cfg Config) int {
	if cfg.TimeoutSeconds <= 0 {
		return 10
	}
	return cfg.TimeoutSeconds
}

// DSN builds the MySQL data source name for cfg. The password is URL
// encoded so special characters survive the driver's parser.
func DSN(cfg Config) string {
	timeout := timeoutOf(cfg)
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		url.UserPassword(cfg.User, cfg.Password).String(), cfg.Host, cfg.Port, cfg.Name, timeout, timeout, timeout)
}

// Connect opens a MySQL connection and pings it. Callers treat the history
// database as optional and log the error instead of aborting.
func Connect(cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutOf(cfg))*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
