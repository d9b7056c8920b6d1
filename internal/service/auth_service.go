package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/codes"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/jwt"
	"github.com/qs3c/mirror_server/internal/pkg/oauth"
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrInvalidCode        = errors.New("验证码无效或已过期")
	ErrInvalidOAuthState  = errors.New("登录状态无效或已过期")
	ErrWrongPassword      = errors.New("当前密码错误")
)

type AuthService struct {
	userRepo *repository.UserRepository
	quota    *QuotaService
	codes    *codes.Store
	mailer   email.Mailer
	github   oauth.Provider
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthService(
	userRepo *repository.UserRepository,
	quota *QuotaService,
	codeStore *codes.Store,
	mailer email.Mailer,
	github oauth.Provider,
	cfg *config.Config,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		quota:    quota,
		codes:    codeStore,
		mailer:   mailer,
		github:   github,
		cfg:      cfg,
		log:      log,
	}
}

func normalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Register 用户注册，成功后直接登录
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.LoginResponse, error) {
	addr := normalizeEmail(req.Email)
	exists, err := s.userRepo.ExistsByEmail(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hash := string(hashed)

	user := &model.User{
		Email:              addr,
		PasswordHash:       &hash,
		Name:               strings.TrimSpace(req.Name),
		SubscriptionTier:   model.TierFree,
		SubscriptionStatus: model.SubscriptionActive,
		CurrentMonthYear:   model.MonthKey(time.Now()),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	s.sendVerification(ctx, user)

	return s.session(user)
}

// Login 用户登录，同时处理跨月清零
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(user)
}

// signIn 清零跨月计数、记录登录时间并签发 token
func (s *AuthService) signIn(user *model.User) (*dto.LoginResponse, error) {
	user, err := s.quota.EnsureMonth(user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"last_sign_in_at": now}); err != nil {
		s.log.Warn("failed to update last sign in", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	user.LastSignInAt = &now

	return s.session(user)
}

func (s *AuthService) session(user *model.User) (*dto.LoginResponse, error) {
	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		Token: token,
		User:  buildUserInfo(user, s.quota.QuotaFor(user)),
	}, nil
}

// sendVerification 发送验证邮件，失败只记日志
func (s *AuthService) sendVerification(ctx context.Context, user *model.User) {
	code, err := s.codes.Issue(ctx, codes.PurposeEmailVerify, strconv.FormatInt(user.ID, 10), 0)
	if err != nil {
		s.log.Warn("failed to issue verification code", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}

	msg, err := email.WelcomeMessage(user.Email, user.Name, s.frontendURL("/auth/verify-email", code))
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.log.Warn("failed to send verification email", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

func (s *AuthService) frontendURL(path, code string) string {
	return strings.TrimRight(s.cfg.Server.FrontendURL, "/") + path + "?code=" + url.QueryEscape(code)
}

// ResendVerification 重新发送验证邮件
func (s *AuthService) ResendVerification(ctx context.Context, userID int64) error {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	s.sendVerification(ctx, user)
	return nil
}

// VerifyEmail 校验邮箱验证码
func (s *AuthService) VerifyEmail(ctx context.Context, code string) (*dto.UserInfo, error) {
	userID, err := s.consumeUserCode(ctx, codes.PurposeEmailVerify, code)
	if err != nil {
		return nil, err
	}

	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"email_verified": true}); err != nil {
		return nil, err
	}
	user.EmailVerified = true

	return buildUserInfo(user, nil), nil
}

func (s *AuthService) consumeUserCode(ctx context.Context, purpose codes.Purpose, code string) (int64, error) {
	value, err := s.codes.Consume(ctx, purpose, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, codes.ErrInvalidCode) {
			return 0, ErrInvalidCode
		}
		return 0, err
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ErrInvalidCode
	}
	return userID, nil
}

// ForgotPassword 发送重置邮件，邮箱不存在时同样返回成功
func (s *AuthService) ForgotPassword(ctx context.Context, addr string) error {
	user, err := s.userRepo.GetByEmail(normalizeEmail(addr))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	code, err := s.codes.Issue(ctx, codes.PurposePasswordReset, strconv.FormatInt(user.ID, 10), 0)
	if err != nil {
		return err
	}

	msg, err := email.PasswordResetMessage(user.Email, user.Name, s.frontendURL("/auth/reset-password", code))
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword 使用重置码设置新密码
func (s *AuthService) ResetPassword(ctx context.Context, code, password string) error {
	userID, err := s.consumeUserCode(ctx, codes.PurposePasswordReset, code)
	if err != nil {
		return err
	}
	if _, err := loadUser(s.userRepo, userID); err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	// 能收到重置邮件即说明邮箱有效
	return s.userRepo.UpdateFields(userID, map[string]interface{}{
		"password_hash":  string(hashed),
		"email_verified": true,
	})
}

// ChangePassword 修改密码，OAuth 账号首次设置时无需旧密码
func (s *AuthService) ChangePassword(userID int64, current, next string) error {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(current)); err != nil {
			return ErrWrongPassword
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.UpdateFields(userID, map[string]interface{}{"password_hash": string(hashed)})
}

// GithubAuthURL 生成授权地址，state 存入 Redis
func (s *AuthService) GithubAuthURL(ctx context.Context) (*dto.GithubAuthURLResponse, error) {
	state, err := s.codes.Issue(ctx, codes.PurposeOAuthState, "github", 0)
	if err != nil {
		return nil, err
	}
	return &dto.GithubAuthURLResponse{
		URL:   s.github.AuthURL(state),
		State: state,
	}, nil
}

// GithubCallback 处理 GitHub OAuth 回调
func (s *AuthService) GithubCallback(ctx context.Context, code, state string) (*dto.LoginResponse, error) {
	if _, err := s.codes.Consume(ctx, codes.PurposeOAuthState, state); err != nil {
		if errors.Is(err, codes.ErrInvalidCode) {
			return nil, ErrInvalidOAuthState
		}
		return nil, err
	}

	ghUser, err := s.github.FetchUser(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get github user: %w", err)
	}
	githubID := strconv.FormatInt(ghUser.ID, 10)

	user, err := s.userRepo.GetByGithubID(githubID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if user != nil {
		return s.signIn(user)
	}

	verified := ghUser.Email != ""
	addr := normalizeEmail(ghUser.Email)
	if addr == "" {
		addr = ghUser.NoReplyEmail()
	}

	// 同邮箱的已有账号直接绑定
	user, err = s.userRepo.GetByEmail(addr)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if user != nil {
		fields := map[string]interface{}{"github_id": githubID}
		if verified {
			fields["email_verified"] = true
		}
		if err := s.userRepo.UpdateFields(user.ID, fields); err != nil {
			return nil, err
		}
		user.GithubID = &githubID
		return s.signIn(user)
	}

	user = &model.User{
		Email:              addr,
		Name:               ghUser.DisplayName(),
		GithubID:           &githubID,
		SubscriptionTier:   model.TierFree,
		SubscriptionStatus: model.SubscriptionActive,
		CurrentMonthYear:   model.MonthKey(time.Now()),
		EmailVerified:      verified,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	s.log.Info("user registered via github", zap.Int64("user_id", user.ID), zap.String("login", ghUser.Login))

	return s.signIn(user)
}

// DeleteAccount 注销账号，有密码的账号需要再次输入密码
func (s *AuthService) DeleteAccount(userID int64, password string) error {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
			return ErrWrongPassword
		}
	}

	if err := s.userRepo.DeleteWithOwnedRecords(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.log.Info("account deleted", zap.Int64("user_id", userID))
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *AuthService) GetUserByID(id int64) (*model.User, error) {
	return loadUser(s.userRepo, id)
}
