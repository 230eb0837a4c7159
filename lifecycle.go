package identity

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LifecycleManager orchestrates profile updates and account deletion
// under permission and invariant rules. Role gating for routes happens in
// the access guard; the manager enforces the rules that depend on the
// relationship between actor and target.
type LifecycleManager struct {
	repo   RepositoryManager
	logger Logger
}

// NewLifecycleManager creates a new LifecycleManager
func NewLifecycleManager(repo RepositoryManager) *LifecycleManager {
	return &LifecycleManager{
		repo:   repo,
		logger: defLogger{},
	}
}

func (m *LifecycleManager) WithLogger(logger Logger) *LifecycleManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// ListUsers returns every user, newest created first
func (m *LifecycleManager) ListUsers(ctx context.Context) ([]*User, error) {
	records, err := m.repo.Users().List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list users")
	}
	return records, nil
}

// UpdateUser applies the supplied subset of {name, email} to the target.
// Only an admin or the target itself may update; a changed email must
// still be unique across live users.
func (m *LifecycleManager) UpdateUser(ctx context.Context, acting *User, targetID uuid.UUID, fields UserUpdate) (*User, error) {
	if acting == nil {
		return nil, ErrUnauthenticated
	}

	if !acting.Role.IsAdmin() && acting.ID != targetID {
		return nil, ErrForbidden
	}

	var updated *User

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		users := m.repo.Users()

		if fields.Email != nil {
			existing, err := users.GetByEmailTx(ctx, tx, *fields.Email)
			if err == nil && existing.ID != targetID {
				return ErrEmailConflict
			}
			if err != nil && !repository.IsRecordNotFound(err) {
				return err
			}
		}

		record, err := users.UpdateTx(ctx, tx, targetID, fields)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}

		updated = record
		return nil
	})

	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "user update transaction failed")
	}

	return updated, nil
}

// DeleteUser removes the target account. Deleting an admin counts the
// remaining admins and the count plus the delete run as one transaction,
// so two concurrent admin deletions cannot both observe a safe count and
// drive the system to zero admins.
func (m *LifecycleManager) DeleteUser(ctx context.Context, acting *User, targetID uuid.UUID) error {
	if acting == nil {
		return ErrUnauthenticated
	}

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	err := m.repo.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		users := m.repo.Users()

		target, err := users.GetByIDTx(ctx, tx, targetID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}

		if target.Role.IsAdmin() {
			admins, err := users.CountByRoleTx(ctx, tx, RoleAdmin)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}

		removed, err := users.DeleteTx(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrUserNotFound
		}

		return nil
	})

	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return richErr
		}
		return errors.Wrap(err, errors.CategoryInternal, "user delete transaction failed")
	}

	m.logger.Info("user deleted", "target_id", targetID.String(), "acting_id", acting.ID.String())

	return nil
}
