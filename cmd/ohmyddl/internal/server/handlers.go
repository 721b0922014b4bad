package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/telemetry"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionCookieName carries the session token issued by /api/login.
const SessionCookieName = "sid"

// sessionCookieMaxAge is how long browsers keep the token.
const sessionCookieMaxAge = 100 * 24 * time.Hour

const maxRequestBody = 1 << 20

type payloadKey struct{}

// JSONRequired answers ret 3 when a request carries a body that is not valid JSON. An empty body is
// accepted as an empty object. The raw payload is stored in the request context.
func JSONRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeJSON(w, newResponse(RetInvalidRequest, err.Error()))
			return
		}
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			body = []byte("{}")
		}
		if !json.Valid(body) {
			writeJSON(w, newResponse(RetInvalidRequest, "request body is not valid JSON"))
			return
		}
		ctx := context.WithValue(r.Context(), payloadKey{}, json.RawMessage(body))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// decodePayload unmarshals the body kept by JSONRequired into v.
func decodePayload(r *http.Request, v any) error {
	raw, _ := r.Context().Value(payloadKey{}).(json.RawMessage)
	if raw == nil {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func tokenFrom(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin logs the posted account in and issues a session token cookie.
func HandleLogin(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodePayload(r, &req); err != nil {
			writeJSON(w, newResponse(RetInvalidRequest, err.Error()))
			return
		}
		cred, err := sdk.NewCredential(req.Username, req.Password)
		if err != nil {
			writeJSON(w, newResponse(RetBadCredentials, err.Error()))
			return
		}

		token, err := reg.Create(r.Context(), cred)
		if err != nil {
			log.Printf("login of %s failed: %v", cred.AccountID, err)
			writeError(w, err)
			return
		}
		setSessionCookie(w, r, token)
		writeJSON(w, newResponse(RetOK, ""))
	}
}

type checkSIDResponse struct {
	apiResponse
	SIDAvailable bool `json:"sid_available"`
}

// HandleCheckSID reports whether the request's token names a live session. It never touches the portal.
func HandleCheckSID(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, checkSIDResponse{
			apiResponse:  newResponse(RetOK, ""),
			SIDAvailable: reg.Exists(tokenFrom(r)),
		})
	}
}

type unfinishedRequest struct {
	DisableCache bool `json:"disable_cache"`
}

// UnfinishedWork is one row of the deadline list.
type UnfinishedWork struct {
	CourseName string `json:"courseName"`
	WorkName   string `json:"workName"`
	// Deadline is a Unix time in seconds, or -1 when the assignment has none.
	Deadline float64 `json:"deadline"`
}

type unfinishedResponse struct {
	apiResponse
	Data     []UnfinishedWork `json:"data"`
	UpdateAt float64          `json:"update_at"`
}

// HandleUnfinishedWorks lists the pending assignments of the current term, soonest deadline first
// and unknown deadlines ahead of all others.
func HandleUnfinishedWorks(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req unfinishedRequest
		if err := decodePayload(r, &req); err != nil {
			writeJSON(w, newResponse(RetInvalidRequest, err.Error()))
			return
		}

		var resp unfinishedResponse
		err := reg.Do(r.Context(), tokenFrom(r), func(ctx context.Context, s *sdk.Session) error {
			if err := loginRequired(ctx, s); err != nil {
				return err
			}
			courses, err := s.ListUnfinishedWork(ctx, sdk.CurrentTerm, req.DisableCache)
			if err != nil {
				return err
			}
			resp.Data = flattenWorks(courses)
			resp.UpdateAt = unixSeconds(s.LastRefreshedAt())
			return nil
		})
		if err != nil {
			log.Printf("get_unfinish_works failed: %v", err)
			writeError(w, err)
			return
		}
		resp.apiResponse = newResponse(RetOK, "")
		writeJSON(w, resp)
	}
}

// loginRequired probes the portal and logs in again when the session has lapsed. The login is
// noted as a "relogin" event on the span in ctx.
func loginRequired(ctx context.Context, s *sdk.Session) error {
	ok, err := s.Probe(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = s.Login(ctx)
	telemetry.AddEvent(trace.SpanFromContext(ctx), "relogin",
		attribute.String(telemetry.AttrAccountID, s.Credential().AccountID),
		attribute.String(telemetry.AttrOutcome, sdk.OutcomeOf(err).String()),
	)
	return err
}

func flattenWorks(courses []sdk.CourseWork) []UnfinishedWork {
	data := []UnfinishedWork{}
	for _, c := range courses {
		for _, work := range c.Works {
			deadline := float64(-1)
			if work.End != nil {
				deadline = unixSeconds(*work.End)
			}
			data = append(data, UnfinishedWork{CourseName: c.Course.Name, WorkName: work.Name, Deadline: deadline})
		}
	}
	sort.SliceStable(data, func(i, j int) bool { return data[i].Deadline < data[j].Deadline })
	return data
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli()) / 1000
}

// HandleLogout deletes the session of the request's token, if any, and clears the cookie.
func HandleLogout(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := tokenFrom(r); token != "" {
			if err := reg.Delete(r.Context(), token); err != nil && !errors.Is(err, ErrUnknownToken) {
				log.Printf("logout failed: %v", err)
				writeError(w, err)
				return
			}
		}
		clearSessionCookie(w, r)
		writeJSON(w, newResponse(RetOK, ""))
	}
}
