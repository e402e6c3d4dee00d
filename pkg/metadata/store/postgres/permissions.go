package postgres

import (
	"context"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// GetEntryPermissions ORs grants on the entry and its ancestors.
func (store *PostgresMetadataStore) GetEntryPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error) {
	entry, err := store.GetEntry(ctx, fsID, entryID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	return store.GetEntryPermissionsByPath(ctx, attrs, fsID, entry.Path)
}

// GetParentPermissions ORs grants on the ancestors of the entry, excluding
// the entry itself.
func (store *PostgresMetadataStore) GetParentPermissions(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, entryID metadata.EntryID) (metadata.EntryPermissions, error) {
	entry, err := store.GetEntry(ctx, fsID, entryID)
	if err != nil {
		return metadata.EntryPermissions{}, err
	}
	return store.GetEntryPermissionsByPath(ctx, attrs, fsID, entry.ParentPath())
}

// GetEntryPermissionsByPath ORs grants on every entry listed in path.
func (store *PostgresMetadataStore) GetEntryPermissionsByPath(ctx context.Context, attrs metadata.AttributeSet, fsID metadata.FilesystemID, path []metadata.EntryID) (metadata.EntryPermissions, error) {
	if len(path) == 0 {
		return metadata.EntryPermissions{}, nil
	}

	issuers, attributes, values := criteriaArrays(attrs)
	var perms metadata.EntryPermissions
	err := store.pool.QueryRow(ctx, `
		SELECT
			COALESCE(bool_or(p.can_read), FALSE),
			COALESCE(bool_or(p.can_write), FALSE),
			COALESCE(bool_or(p.can_share), FALSE)
		FROM entry_permissions p
		JOIN unnest($3::text[], $4::text[], $5::text[]) AS c(issuer, attribute, value)
			ON c.issuer = p.issuer AND c.attribute = p.attribute AND c.value = p.value
		WHERE p.filesystem_id = $1 AND p.entry_id = ANY($2::bigint[])`,
		int64(fsID), toIDs(path), issuers, attributes, values,
	).Scan(&perms.CanRead, &perms.CanWrite, &perms.CanShare)
	if err != nil {
		return metadata.EntryPermissions{}, mapPgError(err, "GetEntryPermissionsByPath")
	}
	return perms, nil
}

// UpsertEntryPermission stores a grant, overwriting one with the same key.
func (store *PostgresMetadataStore) UpsertEntryPermission(ctx context.Context, grant metadata.EntryGrant) error {
	c, r := grant.Criterion, grant.RevocationCriterion
	_, err := store.pool.Exec(ctx, `
		INSERT INTO entry_permissions (
			filesystem_id, entry_id,
			issuer, attribute, value,
			revocation_issuer, revocation_attribute, revocation_value,
			can_read, can_write, can_share, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (filesystem_id, entry_id, issuer, attribute, value,
			revocation_issuer, revocation_attribute, revocation_value)
		DO UPDATE SET
			can_read  = EXCLUDED.can_read,
			can_write = EXCLUDED.can_write,
			can_share = EXCLUDED.can_share,
			comment   = EXCLUDED.comment`,
		int64(grant.FilesystemID), int64(grant.EntryID),
		c.Issuer, c.Attribute, c.Value,
		r.Issuer, r.Attribute, r.Value,
		grant.Permissions.CanRead, grant.Permissions.CanWrite, grant.Permissions.CanShare, grant.Comment,
	)
	if isForeignKeyViolation(err, "") {
		return metadata.NewEntryNotFoundError(grant.EntryID)
	}
	return mapPgError(err, "UpsertEntryPermission")
}

// DeleteEntryPermission removes the grant with the given key.
func (store *PostgresMetadataStore) DeleteEntryPermission(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID, criterion, revocation metadata.Criterion) error {
	tag, err := store.pool.Exec(ctx, `
		DELETE FROM entry_permissions
		WHERE filesystem_id = $1 AND entry_id = $2
			AND issuer = $3 AND attribute = $4 AND value = $5
			AND revocation_issuer = $6 AND revocation_attribute = $7 AND revocation_value = $8`,
		int64(fsID), int64(entryID),
		criterion.Issuer, criterion.Attribute, criterion.Value,
		revocation.Issuer, revocation.Attribute, revocation.Value,
	)
	if err != nil {
		return mapPgError(err, "DeleteEntryPermission")
	}
	if tag.RowsAffected() == 0 {
		return metadata.NewPermissionDoesNotExistError(entryID)
	}
	return nil
}

// ListEntryPermissions returns the grants attached to the entry.
func (store *PostgresMetadataStore) ListEntryPermissions(ctx context.Context, fsID metadata.FilesystemID, entryID metadata.EntryID) ([]metadata.EntryGrant, error) {
	if _, err := store.GetEntry(ctx, fsID, entryID); err != nil {
		return nil, err
	}

	rows, err := store.pool.Query(ctx, `
		SELECT issuer, attribute, value,
			revocation_issuer, revocation_attribute, revocation_value,
			can_read, can_write, can_share, comment
		FROM entry_permissions
		WHERE filesystem_id = $1 AND entry_id = $2
		ORDER BY issuer COLLATE "C", attribute COLLATE "C", value COLLATE "C",
			revocation_issuer COLLATE "C", revocation_attribute COLLATE "C", revocation_value COLLATE "C"`,
		int64(fsID), int64(entryID),
	)
	if err != nil {
		return nil, mapPgError(err, "ListEntryPermissions")
	}
	defer rows.Close()

	out := []metadata.EntryGrant{}
	for rows.Next() {
		g := metadata.EntryGrant{FilesystemID: fsID, EntryID: entryID}
		if err := rows.Scan(
			&g.Criterion.Issuer, &g.Criterion.Attribute, &g.Criterion.Value,
			&g.RevocationCriterion.Issuer, &g.RevocationCriterion.Attribute, &g.RevocationCriterion.Value,
			&g.Permissions.CanRead, &g.Permissions.CanWrite, &g.Permissions.CanShare, &g.Comment,
		); err != nil {
			return nil, mapPgError(err, "ListEntryPermissions")
		}
		out = append(out, g)
	}
	return out, mapPgError(rows.Err(), "ListEntryPermissions")
}
