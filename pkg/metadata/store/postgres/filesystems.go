package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// CreateFilesystem inserts the filesystem, its ID sequences and its initial
// grants in one transaction.
func (store *PostgresMetadataStore) CreateFilesystem(ctx context.Context, grants []metadata.FilesystemGrant, name, alias string) (*metadata.Filesystem, error) {
	var fs metadata.Filesystem

	err := store.withTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO filesystems (name, alias) VALUES ($1, $2) RETURNING id`,
			name, alias,
		).Scan(&id)
		if isUniqueViolation(err, "filesystems_alias_key") {
			return metadata.NewDuplicateAliasError(alias)
		}
		if err != nil {
			return mapPgError(err, "CreateFilesystem")
		}
		fs = metadata.Filesystem{ID: metadata.FilesystemID(id), Name: name, Alias: alias}

		if err := createSequences(ctx, tx, fs.ID); err != nil {
			return err
		}

		for _, g := range grants {
			if _, err := tx.Exec(ctx, `
				INSERT INTO filesystem_permissions AS p
					(filesystem_id, issuer, attribute, value, can_read, can_write, can_share, can_manage)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (filesystem_id, issuer, attribute, value) DO UPDATE SET
					can_read   = p.can_read   OR EXCLUDED.can_read,
					can_write  = p.can_write  OR EXCLUDED.can_write,
					can_share  = p.can_share  OR EXCLUDED.can_share,
					can_manage = p.can_manage OR EXCLUDED.can_manage`,
				id, g.Criterion.Issuer, g.Criterion.Attribute, g.Criterion.Value,
				g.Permissions.CanRead, g.Permissions.CanWrite, g.Permissions.CanShare, g.Permissions.CanManage,
			); err != nil {
				return mapPgError(err, "CreateFilesystem")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// GetFilesystemByAlias looks a filesystem up by alias.
func (store *PostgresMetadataStore) GetFilesystemByAlias(ctx context.Context, alias string) (*metadata.Filesystem, error) {
	var (
		id int64
		fs metadata.Filesystem
	)
	err := store.pool.QueryRow(ctx,
		`SELECT id, name, alias FROM filesystems WHERE alias = $1`, alias,
	).Scan(&id, &fs.Name, &fs.Alias)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, metadata.NewFilesystemNotFoundByAliasError(alias)
	}
	if err != nil {
		return nil, mapPgError(err, "GetFilesystemByAlias")
	}
	fs.ID = metadata.FilesystemID(id)
	return &fs, nil
}

// ListFilesystems returns the filesystems attrs may read, ordered by ID.
func (store *PostgresMetadataStore) ListFilesystems(ctx context.Context, attrs metadata.AttributeSet) ([]metadata.Filesystem, error) {
	issuers, attributes, values := criteriaArrays(attrs)
	rows, err := store.pool.Query(ctx, `
		SELECT f.id, f.name, f.alias
		FROM filesystems f
		JOIN filesystem_permissions p ON p.filesystem_id = f.id
		JOIN unnest($1::text[], $2::text[], $3::text[]) AS c(issuer, attribute, value)
			ON c.issuer = p.issuer AND c.attribute = p.attribute AND c.value = p.value
		GROUP BY f.id, f.name, f.alias
		HAVING bool_or(p.can_read)
		ORDER BY f.id`,
		issuers, attributes, values,
	)
	if err != nil {
		return nil, mapPgError(err, "ListFilesystems")
	}
	defer rows.Close()

	out := []metadata.Filesystem{}
	for rows.Next() {
		var (
			id int64
			fs metadata.Filesystem
		)
		if err := rows.Scan(&id, &fs.Name, &fs.Alias); err != nil {
			return nil, mapPgError(err, "ListFilesystems")
		}
		fs.ID = metadata.FilesystemID(id)
		out = append(out, fs)
	}
	return out, mapPgError(rows.Err(), "ListFilesystems")
}

// GetFilesystemPermissions ORs every filesystem grant matched by attrs.
func (store *PostgresMetadataStore) GetFilesystemPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID) (metadata.FilesystemPermissions, error) {
	issuers, attributes, values := criteriaArrays(attrs)

	var (
		exists bool
		perms  metadata.FilesystemPermissions
	)
	err := store.pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM filesystems WHERE id = $1),
			COALESCE(bool_or(p.can_read), FALSE),
			COALESCE(bool_or(p.can_write), FALSE),
			COALESCE(bool_or(p.can_share), FALSE),
			COALESCE(bool_or(p.can_manage), FALSE)
		FROM filesystem_permissions p
		JOIN unnest($2::text[], $3::text[], $4::text[]) AS c(issuer, attribute, value)
			ON c.issuer = p.issuer AND c.attribute = p.attribute AND c.value = p.value
		WHERE p.filesystem_id = $1`,
		int64(fsID), issuers, attributes, values,
	).Scan(&exists, &perms.CanRead, &perms.CanWrite, &perms.CanShare, &perms.CanManage)
	if err != nil {
		return metadata.FilesystemPermissions{}, mapPgError(err, "GetFilesystemPermissions")
	}
	if !exists {
		return metadata.FilesystemPermissions{}, metadata.NewFilesystemNotFoundError(fsID)
	}
	return perms, nil
}

// UpsertFilesystemPermission creates or overwrites a filesystem grant.
func (store *PostgresMetadataStore) UpsertFilesystemPermission(ctx context.Context, grant metadata.FilesystemGrant) error {
	_, err := store.pool.Exec(ctx, `
		INSERT INTO filesystem_permissions
			(filesystem_id, issuer, attribute, value, can_read, can_write, can_share, can_manage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (filesystem_id, issuer, attribute, value) DO UPDATE SET
			can_read   = EXCLUDED.can_read,
			can_write  = EXCLUDED.can_write,
			can_share  = EXCLUDED.can_share,
			can_manage = EXCLUDED.can_manage`,
		int64(grant.FilesystemID), grant.Criterion.Issuer, grant.Criterion.Attribute, grant.Criterion.Value,
		grant.Permissions.CanRead, grant.Permissions.CanWrite, grant.Permissions.CanShare, grant.Permissions.CanManage,
	)
	if isForeignKeyViolation(err, "") {
		return metadata.NewFilesystemNotFoundError(grant.FilesystemID)
	}
	return mapPgError(err, "UpsertFilesystemPermission")
}

// DeleteFilesystemPermission removes the grant of a criterion.
func (store *PostgresMetadataStore) DeleteFilesystemPermission(ctx context.Context, fsID metadata.FilesystemID, criterion metadata.Criterion) error {
	tag, err := store.pool.Exec(ctx, `
		DELETE FROM filesystem_permissions
		WHERE filesystem_id = $1 AND issuer = $2 AND attribute = $3 AND value = $4`,
		int64(fsID), criterion.Issuer, criterion.Attribute, criterion.Value,
	)
	if err != nil {
		return mapPgError(err, "DeleteFilesystemPermission")
	}
	if tag.RowsAffected() == 0 {
		if err := store.requireFilesystem(ctx, fsID); err != nil {
			return err
		}
		return metadata.NewFilesystemPermissionDoesNotExistError(fsID)
	}
	return nil
}

// ListFilesystemPermissions returns every filesystem grant.
func (store *PostgresMetadataStore) ListFilesystemPermissions(ctx context.Context, fsID metadata.FilesystemID) ([]metadata.FilesystemGrant, error) {
	if err := store.requireFilesystem(ctx, fsID); err != nil {
		return nil, err
	}

	rows, err := store.pool.Query(ctx, `
		SELECT issuer, attribute, value, can_read, can_write, can_share, can_manage
		FROM filesystem_permissions
		WHERE filesystem_id = $1
		ORDER BY issuer COLLATE "C", attribute COLLATE "C", value COLLATE "C"`,
		int64(fsID),
	)
	if err != nil {
		return nil, mapPgError(err, "ListFilesystemPermissions")
	}
	defer rows.Close()

	out := []metadata.FilesystemGrant{}
	for rows.Next() {
		g := metadata.FilesystemGrant{FilesystemID: fsID}
		if err := rows.Scan(&g.Criterion.Issuer, &g.Criterion.Attribute, &g.Criterion.Value,
			&g.Permissions.CanRead, &g.Permissions.CanWrite, &g.Permissions.CanShare, &g.Permissions.CanManage); err != nil {
			return nil, mapPgError(err, "ListFilesystemPermissions")
		}
		out = append(out, g)
	}
	return out, mapPgError(rows.Err(), "ListFilesystemPermissions")
}

func (store *PostgresMetadataStore) requireFilesystem(ctx context.Context, fsID metadata.FilesystemID) error {
	var exists bool
	if err := store.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM filesystems WHERE id = $1)`, int64(fsID),
	).Scan(&exists); err != nil {
		return mapPgError(err, "requireFilesystem")
	}
	if !exists {
		return metadata.NewFilesystemNotFoundError(fsID)
	}
	return nil
}
