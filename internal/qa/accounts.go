package qa

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

const minPasswordLen = 8

var validate = validator.New()

// Accounts registers users and stores their credential hash.
type Accounts struct {
	Deps
}

func NewAccounts(deps Deps) *Accounts {
	return &Accounts{Deps: deps}
}

func (a *Accounts) Register(ctx context.Context, username, email, password string, role model.Role) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := requireText("username", username, 50); err != nil {
		return model.User{}, err
	}
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return model.User{}, apperr.Validation("email is invalid")
	}
	if len(password) < minPasswordLen {
		return model.User{}, apperr.Validation("password must be at least 8 characters")
	}
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.User{}, apperr.Validation("unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, apperr.Internal("hash password", err)
	}
	user := model.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    a.now(),
	}
	id, err := a.Store.CreateUser(ctx, &user)
	if errors.Is(err, store.ErrDuplicateName) {
		return model.User{}, apperr.Validation("username already exists")
	}
	if err != nil {
		return model.User{}, translate(err, "user")
	}
	user.ID = id
	a.Logger.Info("user registered", zap.Int64("user_id", id), zap.String("username", username))
	return user, nil
}

// Authenticate checks a password against the stored hash. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (a *Accounts) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	user, err := a.Store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return model.User{}, translate(err, "user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return model.User{}, apperr.Unauthorized("invalid credentials")
	}
	return user, nil
}

func (a *Accounts) Get(ctx context.Context, id int64) (model.User, error) {
	user, err := a.Store.GetUser(ctx, id)
	return user, translate(err, "user")
}
