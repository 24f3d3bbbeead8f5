package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"moviesite/internal/models"
)

const userColumns = `id, name, email, password_hash, role, is_active, profile_image, created_at, updated_at`

// CreateUser inserts user and fills in its id and timestamps. ErrDuplicate means the email is taken.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	ts := now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, is_active, profile_image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Name, strings.ToLower(user.Email), user.PasswordHash, user.Role, user.IsActive, user.ProfileImage, ts, ts,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUser applies the set fields of changes and returns the stored user.
func (db *DB) UpdateUser(ctx context.Context, id int64, changes models.UserChanges) (*models.User, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if changes.Name != nil {
		add("name", *changes.Name)
	}
	if changes.Email != nil {
		add("email", strings.ToLower(*changes.Email))
	}
	if changes.PasswordHash != nil {
		add("password_hash", *changes.PasswordHash)
	}
	if changes.Role != nil {
		add("role", *changes.Role)
	}
	if changes.IsActive != nil {
		add("is_active", *changes.IsActive)
	}
	if changes.ProfileImage != nil {
		add("profile_image", *changes.ProfileImage)
	}

	if len(sets) > 0 {
		add("updated_at", now())
		args = append(args, id)

		res, err := db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
	}

	return db.GetUserByID(ctx, id)
}

func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns one page of users, newest first, and the total number of matches.
func (db *DB) ListUsers(ctx context.Context, q models.UserQuery) ([]*models.User, int, error) {
	page, limit := models.NormalizePage(q.Page, q.Limit, models.DefaultUserPageSize)

	where := ""
	var args []any
	if s := strings.TrimSpace(q.Search); s != "" {
		where = ` WHERE LOWER(name) LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'`
		pattern := likePattern(s)
		args = append(args, pattern, pattern)
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	args = append(args, limit, models.Offset(page, limit))
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsActive, &user.ProfileImage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
