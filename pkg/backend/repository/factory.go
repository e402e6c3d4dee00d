package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/backend/fs"
	"github.com/marmos91/storagebox/pkg/backend/memory"
	"github.com/marmos91/storagebox/pkg/backend/s3"
)

// CreateFunc builds a backend instance from its definition.
type CreateFunc func(ctx context.Context, def backend.Definition) (backend.Backend, error)

// Create builds a backend from type and dynamic config. defaultTTL applies
// to S3 backends that set no presign_ttl of their own.
func Create(ctx context.Context, def backend.Definition, defaultTTL time.Duration) (backend.Backend, error) {
	switch def.Type {
	case backend.TypeMemory:
		return memory.New(), nil

	case backend.TypeFilesystem:
		path := def.String("path", "")
		if path == "" {
			return nil, fmt.Errorf("filesystem backend %s requires path", def.ID)
		}
		var opts []fs.Option
		if def.Bool("must_exist") {
			opts = append(opts, fs.WithExistingRoot())
		}
		return fs.New(path, opts...)

	case backend.TypeS3:
		bucket := def.String("bucket", "")
		if bucket == "" {
			return nil, fmt.Errorf("s3 backend %s requires bucket", def.ID)
		}
		ttl, err := def.Duration("presign_ttl", defaultTTL)
		if err != nil {
			return nil, err
		}
		endpoint := def.String("endpoint", "")
		return s3.NewFromConfig(ctx, s3.Config{
			Bucket:          bucket,
			Region:          def.String("region", "us-east-1"),
			Endpoint:        endpoint,
			KeyPrefix:       def.String("key_prefix", ""),
			AccessKeyID:     def.String("access_key_id", ""),
			SecretAccessKey: def.String("secret_access_key", ""),
			// Custom endpoints are Localstack or MinIO, which need path-style.
			ForcePathStyle: endpoint != "" || def.Bool("force_path_style"),
			DownloadURLs:   def.Bool("download_urls"),
			PresignTTL:     ttl,
			SpoolDir:       def.String("spool_dir", ""),
		})

	default:
		return nil, fmt.Errorf("%w: %s", backend.ErrUnsupportedType, def.Type)
	}
}
