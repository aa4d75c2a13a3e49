package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/study-scheduler/internal/application"
	"github.com/example/study-scheduler/internal/logging"
)

type fakeSessionValidator struct {
	principal application.Principal
	err       error
	token     string
}

func (f *fakeSessionValidator) ValidateSession(ctx context.Context, token string) (application.Principal, error) {
	f.token = token
	if f.err != nil {
		return application.Principal{}, f.err
	}
	return f.principal, nil
}

func TestRequireSession(t *testing.T) {
	principal := application.Principal{UserID: "user-1", Username: "alice"}

	next := func(t *testing.T, called *bool) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*called = true
			got, ok := PrincipalFromContext(r.Context())
			if !ok {
				t.Fatal("expected principal in request context")
			}
			if got != principal {
				t.Fatalf("unexpected principal: %+v", got)
			}
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("rejects requests without a token", func(t *testing.T) {
		called := false
		handler := RequireSession(&fakeSessionValidator{principal: principal}, nil)(next(t, &called))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/protected", nil))

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
		}
		if called {
			t.Fatal("next handler must not run without a session")
		}
	})

	t.Run("accepts bearer header tokens", func(t *testing.T) {
		called := false
		validator := &fakeSessionValidator{principal: principal}
		handler := RequireSession(validator, nil)(next(t, &called))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer tok-valid")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
		}
		if !called {
			t.Fatal("expected next handler to run")
		}
		if validator.token != "tok-valid" {
			t.Fatalf("validated token = %q, want %q", validator.token, "tok-valid")
		}
	})

	t.Run("accepts session cookies", func(t *testing.T) {
		called := false
		validator := &fakeSessionValidator{principal: principal}
		handler := RequireSession(validator, nil)(next(t, &called))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: "tok-cookie"})
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
		}
		if validator.token != "tok-cookie" {
			t.Fatalf("validated token = %q, want %q", validator.token, "tok-cookie")
		}
	})

	t.Run("maps expired sessions to 401", func(t *testing.T) {
		called := false
		handler := RequireSession(&fakeSessionValidator{err: application.ErrSessionExpired}, nil)(next(t, &called))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer tok-stale")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusUnauthorized)
		}
		if called {
			t.Fatal("next handler must not run for an expired session")
		}
	})

	t.Run("maps validator failures to 500", func(t *testing.T) {
		called := false
		handler := RequireSession(&fakeSessionValidator{err: errors.New("boom")}, nil)(next(t, &called))

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer tok-valid")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", recorder.Code, http.StatusInternalServerError)
		}
		if called {
			t.Fatal("next handler must not run when validation errors")
		}
	})
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if logger := logging.FromContext(r.Context()); logger == nil {
			t.Fatal("expected logger in request context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if !called {
		t.Fatal("expected wrapped handler to run")
	}
	if recorder.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusTeapot)
	}
}
