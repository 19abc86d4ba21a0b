package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shopper/pkg/otel"
	"shopper/pkg/user"
)

const sessionTTL = time.Hour

type ctxKey int

const userIDKey ctxKey = 1

// currentUser returns the authenticated user id set by authMiddleware.
func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func contextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// signupHandler registers a new account.
// @Summary Sign up
// @Accept json
// @Produce json
// @Param creds body signupRequest true "Account"
// @Success 201 {object} user.User
// @Router /signup [post]
func signupHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "signupHandler")
	defer span.End()

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	u := user.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         user.RoleUser,
	}
	if err := users.CreateUser(ctx, u); err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginHandler authenticates and sets a session cookie.
// @Summary Login
// @Accept json
// @Produce json
// @Param creds body loginRequest true "Credentials"
// @Success 200
// @Router /login [post]
func loginHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "loginHandler")
	defer span.End()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		badRequest(w, "email and password are required")
		return
	}
	u, err := users.GetUserByEmail(ctx, req.Email)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password))
	}
	if err != nil {
		respond(w, http.StatusUnauthorized, errorResponse{Code: "INVALID_CREDENTIALS", Message: "invalid email or password"})
		return
	}

	sid := uuid.NewString()
	if err := redisClient.Set(ctx, "session:"+sid, u.ID, sessionTTL).Err(); err != nil {
		respondErr(ctx, w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name: "session_id", Value: sid, Path: "/",
		Expires: time.Now().Add(sessionTTL), HttpOnly: true,
	})
	w.WriteHeader(http.StatusOK)
}

// logoutHandler invalidates the current session.
// @Summary Logout
// @Success 200
// @Router /logout [post]
func logoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "logoutHandler")
	defer span.End()

	if c, err := r.Cookie("session_id"); err == nil {
		redisClient.Del(ctx, "session:"+c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusOK)
}

// authMiddleware resolves the session cookie to a user id.
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session_id")
		if err != nil {
			respond(w, http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"})
			return
		}
		userID, err := redisClient.Get(r.Context(), "session:"+c.Value).Result()
		if err != nil || userID == "" {
			respond(w, http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"})
			return
		}
		ctx := contextWithUser(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware requires the authenticated user to hold the ADMIN role.
func adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := users.GetUser(r.Context(), currentUser(r))
		if err != nil || u.Role != user.RoleAdmin {
			respond(w, http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
