package linkpass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/money"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/reconcile"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

func int64FromVars(vars map[string]string, key string) (int64, error) {
	idStr, ok := vars[key]
	if !ok || idStr == "" {
		return 0, errors.New("missing " + key)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return id, nil
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

func renderJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, code int, msg string) {
	renderJSONStatus(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP codes. Unknown errors are 500.
func statusFor(err error) int {
	var cfgErr *chain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr),
		errors.Is(err, chain.ErrUnsupportedChain),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, reconcile.ErrToAddressMissing):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrOrderNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reconcile.ErrOrderFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log(r).WithError(err).Error("request failed")
		renderErr(w, code, "internal error")
		return
	}
	s.log(r).WithError(err).Debug("request rejected")
	renderErr(w, code, err.Error())
}

func (s *Server) log(r *http.Request) *logrus.Entry {
	id, _ := r.Context().Value(requestIDKey).(string)
	return s.logger.WithField("request_id", id)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument runs inside the router so the matched route template is known.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(started).Seconds())
	})
}

// corsMiddleware answers preflight requests itself, except for the action
// endpoints which announce their own headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions && !strings.HasPrefix(r.URL.Path, actionsPrefix) {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
