package httpapi

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"qazna.org/authcore/internal/account"
	"qazna.org/authcore/internal/audit"
	"qazna.org/authcore/internal/auth"
)

// multipartMemory caps in-memory multipart parsing; MaxBodyBytes bounds the
// body itself.
const multipartMemory = 64 << 10

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// handleLogin implements the OAuth2 password form: username carries the email.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := parseLoginForm(r); err != nil {
		a.respondParseError(w, r, "body", err)
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	var missing []fieldError
	if username == "" {
		missing = append(missing, fieldError{Loc: []string{"body", "username"}, Msg: "Field required", Type: "missing"})
	}
	if password == "" {
		missing = append(missing, fieldError{Loc: []string{"body", "password"}, Msg: "Field required", Type: "missing"})
	}
	if len(missing) > 0 {
		writeValidation(w, r, missing)
		return
	}

	identity, err := a.authn.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = a.audit.LogEvent(r.Context(), audit.LoginFailed, map[string]any{
				"email":  strings.TrimSpace(username),
				"reason": errorDetail(err),
				"ip":     clientIP(r),
			})
		}
		a.respondErr(w, r, err)
		return
	}

	session, err := a.authn.IssueSession(identity)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	_ = a.audit.LogEvent(r.Context(), audit.LoginSucceeded, map[string]any{
		"user_id": identity.ID.String(),
		"ip":      clientIP(r),
	})
	a.logger.DebugContext(r.Context(), "session issued", slog.String("user_id", identity.ID.String()))

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: session.AccessToken,
		TokenType:   session.TokenType,
		ExpiresIn:   session.ExpiresIn(),
	})
}

// handleMe returns the caller's public identity.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r)
	if !ok {
		a.respondErr(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, account.PublicOf(p.Identity))
}

// parseLoginForm fills r.PostForm from urlencoded or multipart bodies.
func parseLoginForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.ParseForm()
	}
	err := r.ParseMultipartForm(multipartMemory)
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
	return err
}

// respondParseError reports an undecodable request body. Oversized bodies get
// 413 rather than a validation error.
func (a *API) respondParseError(w http.ResponseWriter, r *http.Request, where string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		a.logHTTPError(r, http.StatusRequestEntityTooLarge, err)
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}
	writeValidation(w, r, []fieldError{{Loc: []string{where}, Msg: err.Error(), Type: "value_error"}})
}
