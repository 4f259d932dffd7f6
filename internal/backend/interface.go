// Package backend assembles the record store and the services built on it.
package backend

import (
	"context"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/services"
	"fintrack/internal/store"
)

// Backend is every service the entry points need, sharing one store.
type Backend struct {
	Store        store.Store
	Events       *services.Events
	Transactions *services.TransactionLedger
	Budgets      *services.BudgetLedger
	Categories   *services.CategoryResolver
	Analytics    *analytics.Aggregator
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath      string
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration

	// AMQP publishing, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
