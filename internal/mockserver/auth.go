package mockserver

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gradpush/extrapoints/internal/models"
)

// claims is the payload of issued access tokens
type claims struct {
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	StudentID string      `json:"student_id,omitempty"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func newTokenIssuer(secret string, ttl time.Duration) *tokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *tokenIssuer) issue(user models.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(t.ttl)
	c := claims{
		Username:  user.Username,
		Role:      user.Role,
		StudentID: user.StudentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

func (t *tokenIssuer) parse(token string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return &c, nil
}

// captchaStore keeps issued challenges until they are used or expire
type captchaStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]captchaEntry
}

type captchaEntry struct {
	code    string
	expires time.Time
}

const captchaAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newCaptchaStore(ttl time.Duration) *captchaStore {
	return &captchaStore{ttl: ttl, entries: make(map[string]captchaEntry)}
}

func (c *captchaStore) issue() (string, string, error) {
	code := make([]byte, 4)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(captchaAlphabet))))
		if err != nil {
			return "", "", err
		}
		code[i] = captchaAlphabet[n.Int64()]
	}

	id := uuid.NewString()
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
	c.entries[id] = captchaEntry{code: string(code), expires: now.Add(c.ttl)}
	return id, string(code), nil
}

// verify consumes the challenge; codes are case-insensitive
func (c *captchaStore) verify(id, answer string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return false
	}
	delete(c.entries, id)
	return time.Now().Before(entry.expires) && strings.EqualFold(entry.code, strings.TrimSpace(answer))
}

func captchaImage(code string) string {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="120" height="40">` +
		`<rect width="120" height="40" fill="#f2f2f2"/>` +
		`<text x="18" y="28" font-family="monospace" font-size="24" fill="#333">` + code + `</text></svg>`
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// checkCaptcha verifies the challenge when the client sent one
func (s *Server) checkCaptcha(w http.ResponseWriter, id, answer string) bool {
	if id == "" {
		return true
	}
	if !s.captchas.verify(id, answer) {
		respondError(w, http.StatusBadRequest, "invalid_captcha", "验证码错误")
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := creds.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "用户名和密码不能为空")
		return
	}
	if !s.checkCaptcha(w, creds.CaptchaID, creds.Captcha) {
		return
	}

	user, err := s.users.authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			s.logger.Warn("login rejected", "username", creds.Username)
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "用户名或密码错误")
			return
		}
		s.respondFailure(w, "log in", err)
		return
	}

	token, expires, err := s.tokens.issue(*user)
	if err != nil {
		s.respondFailure(w, "log in", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("user logged in", "username", user.Username, "role", user.Role)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "登录成功",
		"user":    user,
		"token":   token,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := decodeJSON(r, &reg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := reg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if !s.checkCaptcha(w, reg.CaptchaID, reg.Captcha) {
		return
	}
	if reg.Role == "" {
		reg.Role = models.RoleStudent
	}
	if reg.Role == models.RoleStudent && reg.StudentID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "学生必须填写学号")
		return
	}

	user := models.User{
		Username:     reg.Username,
		Name:         reg.Name,
		Role:         reg.Role,
		StudentID:    reg.StudentID,
		Email:        reg.Email,
		Phone:        reg.Phone,
		FacultyID:    reg.FacultyID,
		DepartmentID: reg.DepartmentID,
		MajorID:      reg.MajorID,
	}
	if _, err := s.users.create(r.Context(), user, reg.Password); err != nil {
		if errors.Is(err, errConflict) {
			respondError(w, http.StatusConflict, "conflict", "用户名已存在")
			return
		}
		s.respondFailure(w, "register", err)
		return
	}

	s.logger.Info("user registered", "username", reg.Username, "role", reg.Role)
	respondJSON(w, http.StatusCreated, map[string]string{"message": "注册成功"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var reset models.PasswordReset
	if err := decodeJSON(r, &reset); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := reset.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if !s.checkCaptcha(w, reset.CaptchaID, reset.Captcha) {
		return
	}

	if err := s.users.setPassword(r.Context(), reset.Username, reset.NewPassword); err != nil {
		if errors.Is(err, errNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "用户不存在")
			return
		}
		s.respondFailure(w, "reset password", err)
		return
	}

	s.logger.Info("password reset", "username", reset.Username)
	respondJSON(w, http.StatusOK, map[string]string{"message": "密码重置成功"})
}

// handleSessionCheck reports validity instead of failing with 401
func (s *Server) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		respondJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}
	c, err := s.tokens.parse(token)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}
	user, err := s.users.get(r.Context(), c.Username)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":         true,
		"authenticated": true,
		"user":          user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "已退出登录"})
}

func (s *Server) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	id, code, err := s.captchas.issue()
	if err != nil {
		s.respondFailure(w, "generate captcha", err)
		return
	}
	s.logger.Debug("captcha issued", "captcha_id", id)
	respondJSON(w, http.StatusOK, models.Captcha{ID: id, Image: captchaImage(code)})
}

// handleGetUser returns a profile; students may only read their own
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	c := claimsFromContext(r.Context())
	if c.Role == models.RoleStudent && c.Username != username {
		respondError(w, http.StatusForbidden, "forbidden", "没有权限执行此操作")
		return
	}

	user, err := s.users.get(r.Context(), username)
	if err != nil {
		s.respondFailure(w, "load user", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
