package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/solar-storefront/internal/dto"
	"github.com/flicky/solar-storefront/internal/model"
	"github.com/flicky/solar-storefront/internal/repository"
)

var (
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserNotVerified     = errors.New("email not verified")
	ErrUserAlreadyVerified = errors.New("email already verified")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

type AuthService struct {
	userRepo  repository.UserRepository
	otp       *OTPService
	jwtSecret []byte
	jwtExpiry time.Duration
}

func NewAuthService(userRepo repository.UserRepository, otp *OTPService, jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{userRepo: userRepo, otp: otp, jwtSecret: []byte(jwtSecret), jwtExpiry: jwtExpiry}
}

// Register creates an unverified customer and mails a registration code.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.OTPChallengeResponse, error) {
	email := NormalizeEmail(req.Email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email: email, Password: string(hashed),
		FirstName: req.FirstName, LastName: req.LastName, Phone: req.Phone,
		Role: model.RoleCustomer,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	expires, err := s.otp.Send(ctx, email, model.OTPPurposeRegister)
	if err != nil {
		return nil, err
	}
	return &dto.OTPChallengeResponse{Message: "verification code sent", Email: email, ExpiresAt: expires}, nil
}

func (s *AuthService) VerifyRegistration(ctx context.Context, req dto.VerifyOTPRequest) (*dto.AuthResponse, error) {
	user, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user.Verified {
		return nil, ErrUserAlreadyVerified
	}
	if err := s.otp.Verify(ctx, user.Email, model.OTPPurposeRegister, req.Code); err != nil {
		return nil, err
	}
	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}
	user.Verified = true
	return s.authResponse(user)
}

// Login checks the password and mails a login code; the token is issued by VerifyLogin.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.OTPChallengeResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, ErrUserNotVerified
	}

	expires, err := s.otp.Send(ctx, user.Email, model.OTPPurposeLogin)
	if err != nil {
		return nil, err
	}
	return &dto.OTPChallengeResponse{Message: "login code sent", Email: user.Email, ExpiresAt: expires}, nil
}

func (s *AuthService) VerifyLogin(ctx context.Context, req dto.VerifyOTPRequest) (*dto.AuthResponse, error) {
	user, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if !user.Verified {
		return nil, ErrUserNotVerified
	}
	if err := s.otp.Verify(ctx, user.Email, model.OTPPurposeLogin, req.Code); err != nil {
		return nil, err
	}
	return s.authResponse(user)
}

func (s *AuthService) ResendOTP(ctx context.Context, req dto.ResendOTPRequest) (*dto.OTPChallengeResponse, error) {
	user, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	switch req.Purpose {
	case model.OTPPurposeRegister:
		if user.Verified {
			return nil, ErrUserAlreadyVerified
		}
	case model.OTPPurposeLogin:
		if !user.Verified {
			return nil, ErrUserNotVerified
		}
	default:
		return nil, fmt.Errorf("unknown otp purpose %q", req.Purpose)
	}

	expires, err := s.otp.Send(ctx, user.Email, req.Purpose)
	if err != nil {
		return nil, err
	}
	return &dto.OTPChallengeResponse{Message: "code sent", Email: user.Email, ExpiresAt: expires}, nil
}

// EnsureAdmin creates a verified admin account if the email is not taken.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	admin := &model.User{
		Email: email, Password: string(hashed),
		FirstName: "Store", LastName: "Admin", Role: model.RoleAdmin, Verified: true,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Another replica seeded it first.
			return false, nil
		}
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

// Me returns the profile behind an authenticated token.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *AuthService) lookup(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) authResponse(user *model.User) (*dto.AuthResponse, error) {
	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &dto.AuthResponse{Token: token, User: toUserResponse(user)}, nil
}

func (s *AuthService) generateToken(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"role":  user.Role,
		"email": user.Email,
		"exp":   time.Now().Add(s.jwtExpiry).Unix(),
		"iat":   time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func toUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID: user.ID, Email: user.Email,
		FirstName: user.FirstName, LastName: user.LastName, Phone: user.Phone,
		Role: user.Role, Verified: user.Verified,
	}
}
