package utils

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	requestIDKey ctxKey = "rid"
	userIDKey    ctxKey = "uid"
)

// UserHeader carries the caller identity set by the auth proxy in front of the service.
const UserHeader = "X-User-ID"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func Logger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			log.Info("http", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("rid", RID(r.Context())), slog.Int("status", sw.status), slog.Duration("latency", time.Since(start)))
		})
	}
}

// UserID resolves the caller from UserHeader. When the header is missing,
// fallback is used if non-empty (development), otherwise the request is rejected.
func UserID(fallback string, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(UserHeader))
			if uid == "" {
				uid = fallback
			}
			if uid == "" {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
		})
	}
}

func RID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func UID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// Recover hands a handler panic to onPanic so the client still gets a response.
// http.ErrAbortHandler keeps its meaning and is re-raised.
func Recover(log *slog.Logger, onPanic func(w http.ResponseWriter, r *http.Request, v any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Error("panic", slog.String("rid", RID(r.Context())), slog.Any("panic", v), slog.String("stack", string(debug.Stack())))
				onPanic(w, r, v)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
