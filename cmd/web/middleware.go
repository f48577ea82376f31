package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"teestyle/internal/auth"
)

type contextKey string

const identityKey = contextKey("identity")

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.infoLog.Printf("%s - %s %s %s", r.RemoteAddr, r.Proto, r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, fmt.Errorf("%v", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// currentIdentity resolves the caller from a bearer token first, then
// from the session cookie.
func (app *application) currentIdentity(r *http.Request) (auth.Identity, bool) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		id, err := app.tokens.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err == nil {
			return id, true
		}
	}
	if uid := app.session.GetString(r.Context(), "authenticatedUserID"); uid != "" {
		return auth.Identity{
			UserID:  uid,
			IsAdmin: app.session.GetBool(r.Context(), "isAdmin"),
		}, true
	}
	return auth.Identity{}, false
}

func (app *application) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := app.currentIdentity(r)
		if !ok {
			app.clientError(w, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates admin routes on the identity's admin hint. The
// services still re-verify the flag against the user collection, so a
// stale or forged hint only gets as far as a 403 from the service.
func (app *application) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := app.currentIdentity(r)
		if !ok {
			app.clientError(w, http.StatusUnauthorized)
			return
		}
		if !id.IsAdmin {
			app.clientError(w, http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey).(auth.Identity)
	return id
}
