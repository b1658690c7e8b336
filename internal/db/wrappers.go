package db

import (
	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"gorm.io/gorm"
)

/*
the wrappers are a design pattern to connect a concrete implementation from a low-level package
(db) to an interface defined for a high-level package (api), ensuring loose coupling and
preventing circular dependencies.
*/

// PostgresServiceWrapper wraps PostgresDB to implement app_interfaces.PostgresService.
type PostgresServiceWrapper struct {
	*PostgresDB
}

var _ app_interfaces.PostgresService = (*PostgresServiceWrapper)(nil)

// GetPostgresDB returns the GORM DB instance.
func (w *PostgresServiceWrapper) GetPostgresDB() *gorm.DB {
	return w.PostgresDB.GetPostgresDB()
}

// EventStoreServiceWrapper wraps EventStore to implement app_interfaces.EventStoreService.
type EventStoreServiceWrapper struct {
	*EventStore
}

var _ app_interfaces.EventStoreService = (*EventStoreServiceWrapper)(nil)
