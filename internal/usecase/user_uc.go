package usecase

import (
	"context"
	"errors"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/domain/model"
	"carservice-commerce/internal/domain/ports/repository"
	"carservice-commerce/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase tracks the users that own wallets and subscriptions.
type UserUseCase interface {
	RegisterOrFetch(ctx context.Context, id string, role model.Role) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type userUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		tm:    tm,
		log:   logger,
	}
}

// RegisterOrFetch returns the user with id, creating it with role on first
// sight. An existing user's role is never changed here.
func (u *userUC) RegisterOrFetch(ctx context.Context, id string, role model.Role) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	var user *model.User
	err := RunAtomic(ctx, u.tm, Serializable, DefaultMaxAttempts, "user", func(ctx context.Context, tx repository.Tx) error {
		usr, err := u.users.FindByID(ctx, tx, id)
		if err == nil {
			user = usr
			return nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}

		nu, err := model.NewUser(id, role)
		if err != nil {
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			u.log.Error().Err(err).Str("user_id", id).Msg("Failed to save user")
			return err
		}
		user = nu
		return nil
	})

	return user, err
}

func (u *userUC) Get(ctx context.Context, id string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Get")()
	return u.users.FindByID(ctx, repository.NoTX, id)
}

func (u *userUC) Exists(ctx context.Context, id string) (bool, error) {
	return u.users.Exists(ctx, repository.NoTX, id)
}
