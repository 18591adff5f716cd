package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/yishin/mimbonode/internal/models"
	"github.com/yishin/mimbonode/internal/service"
	"github.com/yishin/mimbonode/utils"
)

// Settler is the slice of the settlement engine the HTTP layer calls.
type Settler interface {
	Harvest(ctx context.Context, user *models.User, clientElapsed int64) (*service.HarvestResult, error)
	RecentHarvests(ctx context.Context, userID uint64, limit int) ([]models.Harvest, error)
}

// UserResolver maps a bearer token to the account that owns it.
type UserResolver interface {
	GetUserByToken(ctx context.Context, token string) (*models.User, error)
}

// BalanceReader reads an on-chain wallet balance.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (float64, error)
}

type Server struct {
	settler  Settler
	users    UserResolver
	balances BalanceReader
	logger   *utils.Logger
}

func NewServer(settler Settler, users UserResolver, balances BalanceReader, logger *utils.Logger) *Server {
	return &Server{
		settler:  settler,
		users:    users,
		balances: balances,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/harvest", s.authMiddleware(http.HandlerFunc(s.handleHarvest)))
	mux.Handle("/v1/harvests", s.authMiddleware(http.HandlerFunc(s.handleListHarvests)))
	mux.Handle("/v1/balance", s.authMiddleware(http.HandlerFunc(s.handleBalance)))
	return mux
}

type contextKey string

const userContextKey contextKey = "user"

// authMiddleware resolves the bearer token to an account and stashes it in
// the request context. Unknown tokens and blocked lookups are both a 401;
// the caller learns nothing about which.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := s.users.GetUserByToken(r.Context(), token)
		if err != nil {
			s.logger.Errorf("token lookup failed: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
