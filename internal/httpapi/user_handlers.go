package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"qazna.org/authcore/internal/account"
	"qazna.org/authcore/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=72"`
}

type userList struct {
	Items  []account.Public `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondParseError(w, r, "body", err)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeValidation(w, r, validationDetails("body", err))
		return
	}
	identity, err := a.accounts.Register(r.Context(), account.Registration{Email: req.Email, Password: req.Password})
	switch {
	case errors.Is(err, auth.ErrConflict):
		a.logHTTPError(r, http.StatusConflict, err)
		writeError(w, r, http.StatusConflict, msgEmailAlreadyExists, nil)
		return
	case err != nil:
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account.PublicOf(identity))
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r)
	if !ok {
		return
	}
	p, _ := principalFrom(r)
	if err := auth.RequireSelfOrAdmin(p, id); err != nil {
		a.respondErr(w, r, err)
		return
	}
	identity, err := a.accounts.Get(r.Context(), id)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account.PublicOf(identity))
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := a.queryInt(w, r, "limit", account.DefaultListLimit)
	if !ok {
		return
	}
	offset, ok := a.queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	identities, err := a.accounts.List(r.Context(), limit, offset)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	out := userList{Items: make([]account.Public, 0, len(identities)), Limit: account.ClampLimit(limit), Offset: max(offset, 0)}
	for _, identity := range identities {
		out.Items = append(out.Items, account.PublicOf(identity))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := a.pathID(w, r)
		if !ok {
			return
		}
		identity, err := a.accounts.SetActive(r.Context(), id, active)
		if err != nil {
			a.respondErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account.PublicOf(identity))
	}
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeValidation(w, r, []fieldError{{
			Loc:  []string{"path", "user_id"},
			Msg:  "Input should be a valid UUID",
			Type: "uuid_parsing",
		}})
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeValidation(w, r, []fieldError{{
			Loc:  []string{"query", name},
			Msg:  "Input should be a valid integer",
			Type: "int_parsing",
		}})
		return 0, false
	}
	return v, true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
