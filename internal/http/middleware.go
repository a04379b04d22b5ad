package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
	"github.com/rajbirverr/centurionintimates-sub000/internal/session"
)

const deviceCookieName = "storefront_device"

// DeviceIDMiddleware assigns every browser a stable device ID cookie. The
// device ID keys the local cart snapshot, so it must exist before any cart
// handler runs.
func DeviceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := ""
		if cookie, err := r.Cookie(deviceCookieName); err == nil && cookie.Value != "" {
			deviceID = cookie.Value
		}
		if deviceID == "" {
			deviceID = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     deviceCookieName,
				Value:    deviceID,
				Path:     "/",
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), "device_id", deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

const sessionCookieName = "storefront_session"

// SessionMiddleware resolves the request's identity from the session oracle.
// A missing or failed session degrades to anonymous; handlers never see an
// auth error from here.
func SessionMiddleware(oracle session.Oracle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := session.WithToken(r.Context(), sessionToken(r))

			identity := domain.Anonymous()
			if sess, err := oracle.Current(ctx); err == nil && sess != nil {
				identity = domain.Authenticated(sess.UserID)
				ctx = context.WithValue(ctx, "session", sess)
			}

			ctx = context.WithValue(ctx, "identity", identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), "request_id", requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func shopperFromContext(ctx context.Context) (reconcile.Shopper, bool) {
	deviceID, ok := ctx.Value("device_id").(string)
	if !ok || deviceID == "" {
		return reconcile.Shopper{}, false
	}
	identity, ok := ctx.Value("identity").(domain.Identity)
	if !ok {
		identity = domain.Anonymous()
	}
	return reconcile.Shopper{DeviceID: deviceID, Identity: identity}, true
}

func sessionFromContext(ctx context.Context) *session.Session {
	if sess, ok := ctx.Value("session").(*session.Session); ok {
		return sess
	}
	return nil
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value("request_id").(string); ok {
		return requestID
	}
	return ""
}
