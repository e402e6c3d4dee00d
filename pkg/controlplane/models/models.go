// Package models defines the control plane records.
package models

// AllModels returns every model for AutoMigrate.
func AllModels() []any {
	return []any{
		&BackendConfig{},
	}
}
