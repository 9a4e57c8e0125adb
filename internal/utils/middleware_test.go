package utils

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/x"`)
}

func TestUserID(t *testing.T) {
	reject := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }
	var uid string
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { uid = UID(r.Context()) })

	cases := []struct {
		name     string
		header   string
		fallback string
		status   int
		want     string
	}{
		{"header", "u-1", "", http.StatusOK, "u-1"},
		{"header wins over fallback", "u-1", "dev", http.StatusOK, "u-1"},
		{"fallback", "", "dev", http.StatusOK, "dev"},
		{"missing", "", "", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uid = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(UserHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			UserID(tc.fallback, reject)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.want, uid)
		})
	}
}

func TestRecoverTurnsPanicIntoResponse(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	var got any
	h := Recover(log, func(w http.ResponseWriter, r *http.Request, v any) {
		got = v
		w.WriteHeader(http.StatusInternalServerError)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]int
		m["boom"] = 1
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotNil(t, got)
	assert.Contains(t, buf.String(), `"msg":"panic"`)
}

func TestRecoverReraisesAbort(t *testing.T) {
	h := Recover(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), func(http.ResponseWriter, *http.Request, any) {
		t.Fatal("abort must not be handled")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
