package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
)

const tokenTTL = 24 * time.Hour

// Locals keys set by RequireAuth for downstream handlers.
const (
	localOwnerID   = "ownerId"
	localOwnerName = "ownerName"
)

type AuthHandler struct {
	accounts ports.AccountStore
	secret   []byte
}

func NewAuthHandler(accounts ports.AccountStore, secret []byte) *AuthHandler {
	return &AuthHandler{accounts: accounts, secret: secret}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || !strings.Contains(req.Email, "@") || len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name, valid email and a password of at least 8 characters are required",
		})
	}

	existing, err := h.accounts.AccountByEmail(c.Context(), req.Email)
	if err != nil {
		return internalError(c, err)
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "An account with this email already exists",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return internalError(c, err)
	}

	acct := &domain.Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.accounts.CreateAccount(c.Context(), acct); err != nil {
		return internalError(c, err)
	}

	token, err := h.issueToken(acct)
	if err != nil {
		return internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	acct, err := h.accounts.AccountByEmail(c.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return internalError(c, err)
	}
	if acct == nil || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	token, err := h.issueToken(acct)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// RequireAuth validates the Bearer token and stashes the account identity
// in the request locals.
func (h *AuthHandler) RequireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing bearer token",
		})
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.secret, nil
	})
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}

	c.Locals(localOwnerID, sub)
	c.Locals(localOwnerName, name)
	return c.Next()
}

func (h *AuthHandler) issueToken(acct *domain.Account) (string, error) {
	claims := jwt.MapClaims{
		"sub":   acct.ID,
		"name":  acct.Name,
		"email": acct.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}
