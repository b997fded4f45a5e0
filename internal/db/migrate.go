package db

import (
	"database/sql"
	"fmt"

	"invman/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunMigrations прогоняет goose-миграции через database/sql-адаптер pgx.
// Отдельное короткоживущее соединение: пул приложения живёт своей жизнью.
func RunMigrations(cfg *config.Config, dir string) error {
	sqlDB, err := sql.Open("pgx", cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("открытие соединения для миграций: %w", err)
	}
	defer sqlDB.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := goose.Up(sqlDB, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
