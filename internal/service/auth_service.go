package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fimin-dev/food-delivery-api/internal/models"
	"github.com/fimin-dev/food-delivery-api/internal/repository"
	appErrors "github.com/fimin-dev/food-delivery-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error)
	RotateAccessTokenID(ctx context.Context, id, oldAccessTokenID, newAccessTokenID string) error
	DeleteByUserAndAccessTokenID(ctx context.Context, userID, accessTokenID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

type addressCatalog interface {
	BuildingExists(ctx context.Context, objectGUID string) (bool, error)
}

// AuthConfig defines tunables for the authentication flows.
type AuthConfig struct {
	RefreshLifetime time.Duration
	BcryptCost      int
}

// AuthService orchestrates registration, login, refresh rotation, logout and
// profile management over the session store and token service.
type AuthService struct {
	users     authUserRepository
	sessions  sessionStore
	addresses addressCatalog
	tokens    *TokenService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions sessionStore, addresses addressCatalog, tokens *TokenService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.BcryptCost <= 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		addresses: addresses,
		tokens:    tokens,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
	}
}

// Register validates the payload, creates the user and opens a session.
// Email-uniqueness and address-existence problems are aggregated into a
// single validation error; nothing is persisted unless all checks pass.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	fields := map[string][]string{}

	taken, err := s.users.EmailTaken(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if taken {
		fields["Email"] = append(fields["Email"], fmt.Sprintf("email %q is already taken", req.Email))
	}

	if req.AddressID != nil {
		exists, err := s.addresses.BuildingExists(ctx, *req.AddressID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check address")
		}
		if !exists {
			fields["Address"] = append(fields["Address"], fmt.Sprintf("building %s not found", *req.AddressID))
		}
	}

	if len(fields) > 0 {
		return nil, appErrors.NewValidation(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		BirthDate:    req.BirthDate,
		Gender:       req.Gender,
		PhoneNumber:  req.PhoneNumber,
		AddressID:    req.AddressID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))

	return s.openSession(ctx, user)
}

// Login authenticates by email and password. Absent user and wrong password
// produce the same undifferentiated error to avoid user enumeration.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	return s.openSession(ctx, user)
}

// Refresh exchanges an access token (expired or not, but unforged) plus its
// paired refresh token for a new access token. The stored access token id is
// rotated; the refresh token value is returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	claims, err := s.tokens.ParseStructural(req.AccessToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "access token failed validation")
	}

	session, err := s.sessions.FindByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found, not paired with the access token, or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}

	now := time.Now().UTC()
	if session.UserID != claims.UserID() || session.AccessTokenID != claims.AccessTokenID() || session.Expired(now) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found, not paired with the access token, or expired")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	accessToken, jti, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.sessions.RotateAccessTokenID(ctx, session.ID, session.AccessTokenID, jti); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session was rotated concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session")
	}

	if s.metrics != nil {
		s.metrics.SessionRotated()
	}
	s.logger.Debug("session rotated", zap.String("user_id", user.ID), zap.String("session_id", session.ID))

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: req.RefreshToken}, nil
}

// LogoutCurrent revokes the single session bound to the presented access
// token's jti. An already-revoked session is reported as not found rather
// than treated as success.
func (s *AuthService) LogoutCurrent(ctx context.Context, userID, accessTokenID string) error {
	if err := s.sessions.DeleteByUserAndAccessTokenID(ctx, userID, accessTokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}

	if s.metrics != nil {
		s.metrics.SessionsRevoked(1)
	}
	s.logger.Info("session revoked", zap.String("user_id", userID))
	return nil
}

// LogoutAll revokes every session the user owns. Idempotent.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	count, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete sessions")
	}

	if s.metrics != nil {
		s.metrics.SessionsRevoked(count)
	}
	s.logger.Info("all sessions revoked", zap.String("user_id", userID), zap.Int64("count", count))
	return nil
}

// GetProfile returns the user's profile.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	return &models.Profile{
		ID:          user.ID,
		FullName:    user.FullName,
		Email:       user.Email,
		BirthDate:   user.BirthDate,
		Gender:      user.Gender,
		AddressID:   user.AddressID,
		PhoneNumber: user.PhoneNumber,
	}, nil
}

// EditProfile updates profile fields, revalidating email uniqueness and
// address existence with the same aggregation as registration.
func (s *AuthService) EditProfile(ctx context.Context, userID string, req models.EditProfileRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	fields := map[string][]string{}

	if req.AddressID != nil {
		exists, err := s.addresses.BuildingExists(ctx, *req.AddressID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check address")
		}
		if !exists {
			fields["Address"] = append(fields["Address"], fmt.Sprintf("building %s not found", *req.AddressID))
		}
	}

	if req.Email != user.Email {
		taken, err := s.users.EmailTaken(ctx, req.Email)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
		}
		if taken {
			fields["Email"] = append(fields["Email"], fmt.Sprintf("a user with email %q already exists", req.Email))
		}
	}

	if len(fields) > 0 {
		return appErrors.NewValidation(fields)
	}

	user.FullName = req.FullName
	user.Email = req.Email
	user.BirthDate = req.BirthDate
	user.Gender = req.Gender
	user.AddressID = req.AddressID
	user.PhoneNumber = req.PhoneNumber

	if err := s.users.Update(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return nil
}

// openSession mints a token pair and persists the session row. A refresh
// token unique collision is retried once with a regenerated value.
func (s *AuthService) openSession(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	accessToken, jti, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	now := time.Now().UTC()
	var refreshToken string
	for attempt := 0; attempt < 2; attempt++ {
		refreshToken, err = s.tokens.IssueRefreshToken()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
		}

		err = s.sessions.Create(ctx, &models.Session{
			UserID:        user.ID,
			RefreshToken:  refreshToken,
			AccessTokenID: jti,
			ExpiresAt:     now.Add(s.config.RefreshLifetime),
			CreatedAt:     now,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrRefreshTokenTaken) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
		}
		s.logger.Warn("refresh token collision, regenerating", zap.String("user_id", user.ID))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}

	if s.metrics != nil {
		s.metrics.SessionCreated()
	}

	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// validationError converts validator failures into the aggregated field map.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fmt.Sprintf("failed on the %q rule", fe.Tag()))
	}
	return appErrors.NewValidation(fields)
}
