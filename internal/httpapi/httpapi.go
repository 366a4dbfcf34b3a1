package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/service"
	"finlogs/backend/internal/store"
)

// Server wires the bookkeeping service to HTTP. Every route except login
// requires a bearer token; mutating and administrative routes additionally
// require the admin role.
type Server struct {
	svc           *service.Service
	auth          *AuthManager
	logins        *attemptLimiter
	logger        *logrus.Logger
	allowedOrigin string
	defaultTenant string
}

func NewServer(svc *service.Service, auth *AuthManager, logger *logrus.Logger, allowedOrigin, defaultTenant string) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if defaultTenant == "" {
		defaultTenant = service.DefaultTenant
	}
	return &Server{
		svc:           svc,
		auth:          auth,
		logins:        newAttemptLimiter(5, 15*time.Minute),
		logger:        logger,
		allowedOrigin: allowedOrigin,
		defaultTenant: defaultTenant,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/users/check", s.handleCheckUser)

	mux.HandleFunc("GET /api/parties", s.requireAuth(s.handleListParties))
	mux.HandleFunc("POST /api/parties", s.requireAuth(s.handleCreateParty, "admin"))
	mux.HandleFunc("POST /api/parties/rename", s.requireAuth(s.handleRenameParty, "admin"))

	mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.requireAuth(s.handleAddTransaction))
	mux.HandleFunc("GET /api/transactions/by-date", s.requireAuth(s.handleTransactionsByDate))
	mux.HandleFunc("GET /api/transactions/{id}", s.requireAuth(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.requireAuth(s.handleEditTransaction, "admin"))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.requireAuth(s.handleDeleteTransaction, "admin"))

	mux.HandleFunc("POST /api/daily-cash", s.requireAuth(s.handleSetDailyCash))
	mux.HandleFunc("GET /api/opening-cash", s.requireAuth(s.handleGetOpeningCash))
	mux.HandleFunc("POST /api/opening-cash", s.requireAuth(s.handleSetOpeningCash, "admin"))

	mux.HandleFunc("GET /api/reports/ledger", s.requireAuth(s.handleLedger))
	mux.HandleFunc("GET /api/reports/account", s.requireAuth(s.handleAccountByMode))
	mux.HandleFunc("GET /api/reports/by-type", s.requireAuth(s.handleAccountByType))
	mux.HandleFunc("GET /api/reports/outstanding", s.requireAuth(s.handleOutstanding))
	mux.HandleFunc("GET /api/reports/trial-balance", s.requireAuth(s.handleTrialBalance))
	mux.HandleFunc("GET /api/reports/profit-loss", s.requireAuth(s.handleProfitAndLoss))
	mux.HandleFunc("GET /api/reports/daily-summary", s.requireAuth(s.handleDailySummary))
	mux.HandleFunc("GET /api/reports/short-excess", s.requireAuth(s.handleShortExcess))
	mux.HandleFunc("GET /api/reports/daily-mode-summary", s.requireAuth(s.handleDailyModeSummary))
	mux.HandleFunc("GET /api/dashboard", s.requireAuth(s.handleDashboard))

	mux.HandleFunc("GET /api/users", s.requireAuth(s.handleListUsers, "admin"))
	mux.HandleFunc("POST /api/users", s.requireAuth(s.handleCreateUser, "admin"))
	mux.HandleFunc("POST /api/users/change-password", s.requireAuth(s.handleChangePassword, "admin"))
	mux.HandleFunc("DELETE /api/users/{username}", s.requireAuth(s.handleDeleteUser, "admin"))
	mux.HandleFunc("GET /api/audit-logs", s.requireAuth(s.handleListAuditLogs, "admin"))

	return s.withCORS(mux)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth validates the bearer token, binds the actor and tenant into the
// request context, and optionally enforces a role allowlist.
func (s *Server) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if len(roles) > 0 {
			allowed := false
			for _, role := range roles {
				if actor.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
		}

		tenant := strings.TrimSpace(r.Header.Get("X-Tenant"))
		if tenant == "" {
			tenant = s.defaultTenant
		}
		ctx := service.WithActor(r.Context(), *actor)
		ctx = service.WithTenant(ctx, tenant)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.logins.allowed(req.Username) {
		writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
		return
	}

	user, err := s.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.logins.fail(req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.logins.reset(req.Username)

	token, expiresAt, err := s.auth.IssueToken(user.Username, user.Role)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		Username:    user.Username,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exists, err := s.svc.CheckUser(r.Context(), req.Username)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CheckUserResponse{Exists: exists})
}

func (s *Server) handleListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := s.svc.ListParties(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parties)
}

func (s *Server) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	var req domain.PartyCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	party, err := s.svc.CreateParty(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, party)
}

func (s *Server) handleRenameParty(w http.ResponseWriter, r *http.Request) {
	var req domain.PartyRenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.RenameParty(r.Context(), req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	resp, err := s.svc.ListTransactions(r.Context(), q.Get("start"), q.Get("end"), page, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	txn, err := s.svc.AddTransaction(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleTransactionsByDate(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.TransactionsByDate(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: bad id", store.ErrInvalidInput)
	}
	return id, nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	view, err := s.svc.GetTransaction(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var req domain.TransactionEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = id
	if err := s.svc.EditTransaction(r.Context(), req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.svc.DeleteTransaction(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSetDailyCash(w http.ResponseWriter, r *http.Request) {
	var req domain.DailyCashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.SetDailyCash(r.Context(), req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleGetOpeningCash(w http.ResponseWriter, r *http.Request) {
	amount, err := s.svc.OpeningCash(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OpeningCashResponse{OpeningCash: amount})
}

func (s *Server) handleSetOpeningCash(w http.ResponseWriter, r *http.Request) {
	var req domain.OpeningCashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.SetOpeningCash(r.Context(), req.Amount); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.OpeningCashResponse{OpeningCash: req.Amount})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.svc.Ledger(r.Context(), q.Get("party"), q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAccountByMode(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.AccountByMode(r.Context(), r.URL.Query().Get("mode"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAccountByType(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.AccountByType(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Outstanding(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	lines, err := s.svc.TrialBalance(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) handleProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.ProfitAndLoss(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func rangeParams(r *http.Request) (start, end string, days int) {
	q := r.URL.Query()
	days, _ = strconv.Atoi(q.Get("days"))
	return q.Get("start"), q.Get("end"), days
}

func (s *Server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	start, end, days := rangeParams(r)
	rows, err := s.svc.DailySummary(r.Context(), start, end, days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleShortExcess(w http.ResponseWriter, r *http.Request) {
	start, end, days := rangeParams(r)
	rows, err := s.svc.ShortExcess(r.Context(), start, end, days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDailyModeSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.DailyModeSummary(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.svc.Dashboard(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.CreateUser(r.Context(), req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.ChangePassword(r.Context(), req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteUser(r.Context(), r.PathValue("username")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.svc.ListAuditLogs(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// writeServiceError maps domain errors onto HTTP statuses. Internal failures
// are logged but never echoed to the client.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.WithError(err).Error("internal error")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
