package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marmos91/storagebox/internal/logger"
	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/controlplane/models"
)

func validateBackend(b *models.BackendConfig) error {
	if b.ID == "" {
		return fmt.Errorf("%w: id is required", models.ErrInvalidBackend)
	}
	switch backend.Type(b.Type) {
	case backend.TypeMemory, backend.TypeFilesystem, backend.TypeS3:
	default:
		return fmt.Errorf("%w: unsupported type %q", models.ErrInvalidBackend, b.Type)
	}
	return nil
}

func (s *GORMStore) GetBackend(ctx context.Context, id string) (*models.BackendConfig, error) {
	return findOne[models.BackendConfig](ctx, s.db, "id", id, models.ErrBackendNotFound)
}

func (s *GORMStore) ListBackends(ctx context.Context) ([]*models.BackendConfig, error) {
	return findAll[models.BackendConfig](ctx, s.db, "id")
}

func (s *GORMStore) CreateBackend(ctx context.Context, b *models.BackendConfig) error {
	if err := validateBackend(b); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		if isDuplicate(err) {
			return models.ErrDuplicateBackend
		}
		return err
	}
	return nil
}

func (s *GORMStore) UpdateBackend(ctx context.Context, b *models.BackendConfig) error {
	if err := validateBackend(b); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.BackendConfig{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"type":   b.Type,
			"config": b.Config,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrBackendNotFound
	}
	return nil
}

func (s *GORMStore) DeleteBackend(ctx context.Context, id string) error {
	return removeOne[models.BackendConfig](ctx, s.db, "id", id, models.ErrBackendNotFound)
}

func (s *GORMStore) SeedBackends(ctx context.Context, defs []backend.Definition) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defs {
			row, err := models.NewBackendConfig(def)
			if err != nil {
				return fmt.Errorf("backend %s: %w", def.ID, err)
			}
			if err := validateBackend(row); err != nil {
				return err
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				created++
				logger.Info("Registered backend from configuration", logger.Backend(def.ID), "type", string(def.Type))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *GORMStore) GetBackendDefinition(ctx context.Context, id string) (*backend.Definition, error) {
	row, err := s.GetBackend(ctx, id)
	if err != nil {
		return nil, err
	}
	def, err := row.Definition()
	if err != nil {
		return nil, fmt.Errorf("backend %s: decode config: %w", id, err)
	}
	return &def, nil
}
