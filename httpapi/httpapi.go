// Package httpapi exposes the HTTP surface of the relay: the liveness
// probe, save file read/write, the auth probe/update endpoints and the
// chat websocket upgrade.
//
// Credentials travel as HTTP Basic auth, the user identifier as the
// username and the password as the password. A request without a
// syntactically valid Authorization header is rejected before any
// state is touched. Whether the credentials actually authorize an
// operation is decided per endpoint by the auth gate, so a user with
// no stored password still passes with any password.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	uncivserver "github.com/K4zoku/unciv-server-cf"
	"github.com/K4zoku/unciv-server-cf/auth"
	"github.com/K4zoku/unciv-server-cf/saves"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// maxBodySize caps the request body of the file and password write
// endpoints.
const maxBodySize = 1 << 20

// Handler holds the collaborators of the HTTP surface. All fields
// except Upgrader and LogFunc must be set.
type Handler struct {
	// Relay serves the chat websocket connections.
	Relay *uncivserver.Server

	// Gate authorizes requests and manages passwords.
	Gate *auth.Gate

	// Saves reads and writes the game save files.
	Saves *saves.Store

	// Upgrader performs the websocket upgrade of the chat endpoint. A
	// default upgrader is used if nil.
	Upgrader *websocket.Upgrader

	// LogFunc is the function to call to log events. If nil,
	// log.Printf is used.
	LogFunc func(string, ...interface{})
}

// Routes builds the HTTP routes served by the relay process.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/isalive", h.isAlive)
	r.Get("/auth", h.checkAuth)
	r.Put("/auth", h.setPassword)
	r.Get("/files/{fileName}", h.getFile)
	r.Put("/files/{fileName}", h.putFile)
	r.Get("/chat", h.chat)
	return r
}

func (h *Handler) logf(f string, args ...interface{}) {
	if h.LogFunc != nil {
		h.LogFunc(f, args...)
		return
	}
	log.Printf(f, args...)
}

func (h *Handler) upgrader() *websocket.Upgrader {
	if h.Upgrader != nil {
		return h.Upgrader
	}
	return &websocket.Upgrader{}
}

// credentials extracts the Basic auth user identifier and password. A
// missing or malformed header, or an empty user identifier, fails the
// extraction.
func credentials(r *http.Request) (userID, password string, ok bool) {
	userID, password, ok = r.BasicAuth()
	if !ok || userID == "" {
		return "", "", false
	}
	return userID, password, true
}

// isAlive serves the static capability descriptor used by clients to
// probe the server.
func (h *Handler) isAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"authVersion": "1"})
}

// checkAuth probes the presented credentials: 204 when no password was
// ever set for the user, 200 on a match, 401 on a mismatch. The
// mismatch response does not reveal whether the user identifier is
// known.
func (h *Handler) checkAuth(w http.ResponseWriter, r *http.Request) {
	userID, password, ok := credentials(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.Gate.Probe(r.Context(), userID, password)
	if err != nil {
		h.logf("httpapi: auth probe failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	switch status {
	case auth.NoPassword:
		w.WriteHeader(http.StatusNoContent)
	case auth.Authorized:
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

// setPassword stores the request body as the user's new password,
// gated by the currently stored one.
func (h *Handler) setPassword(w http.ResponseWriter, r *http.Request) {
	userID, password, ok := credentials(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	err = h.Gate.SetPassword(r.Context(), userID, password, string(body))
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrPasswordTooShort):
		http.Error(w, "Password too short", http.StatusBadRequest)
	case err != nil:
		h.logf("httpapi: password set failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// getFile serves a save file. A missing file is a 404 before any
// authorization check runs.
func (h *Handler) getFile(w http.ResponseWriter, r *http.Request) {
	userID, password, ok := credentials(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	name := chi.URLParam(r, "fileName")
	content, err := h.Saves.Fetch(r.Context(), name, userID, password)
	switch {
	case errors.Is(err, saves.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case err != nil:
		h.logf("httpapi: file fetch failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, content)
	}
}

// putFile writes a save file: 201 when it creates the file, 200 on an
// authorized overwrite.
func (h *Handler) putFile(w http.ResponseWriter, r *http.Request) {
	userID, password, ok := credentials(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	name := chi.URLParam(r, "fileName")
	created, err := h.Saves.Save(r.Context(), name, userID, password, string(body))
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case err != nil:
		h.logf("httpapi: file save failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	case created:
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// chat upgrades the connection to the chat websocket protocol. The
// same password gate applies at connection time; afterwards the
// connection is served by the relay until it closes.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	userID, password, ok := credentials(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	authorized, err := h.Gate.Authorize(r.Context(), userID, password)
	if err != nil {
		h.logf("httpapi: chat auth failed: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if !authorized {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.logf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.Relay.ServeConn(conn)
}
