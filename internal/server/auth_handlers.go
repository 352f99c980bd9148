package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/novabot/nova/internal/auth"
	"github.com/novabot/nova/internal/store"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleSignup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "A valid email is required")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "Password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not create account")
	}

	user, err := s.store.CreateUser(c.Request().Context(), req.Email, req.FullName, hash)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return echo.NewHTTPError(http.StatusConflict, "Email already exists")
		}
		s.log.Error("create user", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not create account")
	}
	return c.JSON(http.StatusCreated, user)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	user, err := s.store.UserByEmail(c.Request().Context(), req.Email)
	if err != nil || !auth.CheckPassword(user.HashedPassword, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	pair, err := s.auth.IssuePair(user.ID)
	if err != nil {
		s.log.Error("issue tokens", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not issue tokens")
	}
	return c.JSON(http.StatusOK, pair)
}

func (s *Server) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	userID, err := s.auth.Verify(req.RefreshToken, auth.TypeRefresh)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	}
	if _, err := s.store.UserByID(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not found")
	}

	pair, err := s.auth.IssuePair(userID)
	if err != nil {
		s.log.Error("issue tokens", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not issue tokens")
	}
	return c.JSON(http.StatusOK, pair)
}

func (s *Server) handleMe(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) handleUsageSummary(c echo.Context) error {
	summary, err := s.store.UsageSummary(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		s.log.Error("usage summary", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Could not load usage")
	}
	return c.JSON(http.StatusOK, summary)
}
