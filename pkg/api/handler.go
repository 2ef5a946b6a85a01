package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/niels/ctf-server/pkg/logging"
	"github.com/niels/ctf-server/pkg/protocol"
	"github.com/niels/ctf-server/pkg/store"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Prefix is the path prefix owned by the API handler
const Prefix = "/api/"

const challengesPrefix = "/api/challenges/"

// Options configures a Handler
type Options struct {
	// ExposeStoreErrors sends store error messages to clients verbatim
	ExposeStoreErrors bool
	// Now is the clock used for login and solve timestamps
	Now func() time.Time
}

type handlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

// route is one entry of the fixed route table
type route struct {
	method string
	path   string
	prefix bool
	handle handlerFunc
}

func (r route) matches(req *protocol.Request) bool {
	if req.Method != r.method {
		return false
	}
	if r.prefix {
		return strings.HasPrefix(req.Path, r.path) && len(req.Path) > len(r.path)
	}
	return req.Path == r.path
}

// Handler implements the JSON REST endpoints
type Handler struct {
	store        store.Store
	routes       []route
	exposeErrors bool
	now          func() time.Time
	logger       zerolog.Logger
}

// NewHandler creates the API handler on top of s
func NewHandler(s store.Store, opts Options) *Handler {
	if s == nil {
		panic("api.NewHandler: store is nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Handler{
		store:        s,
		exposeErrors: opts.ExposeStoreErrors,
		now:          opts.Now,
		logger:       logging.WithComponent("api"),
	}
	h.routes = []route{
		{method: "POST", path: "/api/auth/login", handle: h.handleLogin},
		{method: "GET", path: "/api/challenges", handle: h.handleChallenges},
		{method: "GET", path: "/api/profile", handle: h.handleProfile},
		{method: "POST", path: challengesPrefix, prefix: true, handle: h.handleSolve},
	}
	return h
}

// Serve writes the response for an API request
func (h *Handler) Serve(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error {
	return w.WriteResponse(h.Handle(ctx, req), req.IsHead())
}

// Handle dispatches req through the route table and returns the response.
// Every API response allows any origin.
func (h *Handler) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	var resp *protocol.Response
	if req.Method == "OPTIONS" {
		resp = preflight()
	} else {
		resp = h.dispatch(ctx, req)
	}
	return resp.WithHeader("Access-Control-Allow-Origin", "*")
}

func (h *Handler) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	for _, r := range h.routes {
		if r.matches(req) {
			return r.handle(ctx, req)
		}
	}
	return errorJSON(http.StatusNotFound, "Not Found")
}

func preflight() *protocol.Response {
	return protocol.NewResponse(http.StatusNoContent, protocol.ContentTypeJSON, nil).
		WithHeader("Access-Control-Allow-Methods", "GET, POST, OPTIONS").
		WithHeader("Access-Control-Allow-Headers", "Content-Type").
		WithHeader("Access-Control-Max-Age", "600")
}

// handleLogin looks the user up by name and registers unknown names.
// Method: POST
// Request: {"username": "...", "password": "..."}
// Response (200): LoginResponse with the user
// Errors:
//   - 401 {"success": false} for any failure
func (h *Handler) handleLogin(ctx context.Context, req *protocol.Request) *protocol.Response {
	failed := protocol.JSON(http.StatusUnauthorized, LoginResponse{Success: false})

	if !gjson.ValidBytes(req.Body) {
		return failed
	}
	name := gjson.GetBytes(req.Body, "username")
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return failed
	}
	// The password field is accepted but not verified or stored

	user, err := h.findOrCreateUser(ctx, strings.TrimSpace(name.Str))
	if err != nil {
		h.logger.Error().Err(err).Str("username", name.Str).Msg("Login failed")
		return failed
	}

	return protocol.JSON(http.StatusOK, LoginResponse{
		Success: true,
		User:    FromUserLogin(user),
	})
}

func (h *Handler) findOrCreateUser(ctx context.Context, username string) (store.User, error) {
	now := h.timestamp()

	// An existing user has the login time refreshed
	rows, err := h.store.Query(ctx,
		`UPDATE users SET lastLogin = ? WHERE username = ? RETURNING userID, username, score, lastLogin`,
		now, username)
	if err != nil {
		return store.User{}, err
	}
	if len(rows) > 0 {
		return store.UserFromRow(rows[0]), nil
	}

	rows, err = h.store.Query(ctx,
		`INSERT INTO users (username, score, lastLogin) VALUES (?, 0, ?)
		ON CONFLICT (username) DO NOTHING
		RETURNING userID, username, score, lastLogin`,
		username, now)
	if err != nil {
		return store.User{}, err
	}
	if len(rows) > 0 {
		h.logger.Info().Str("username", username).Msg("Registered new user")
		return store.UserFromRow(rows[0]), nil
	}

	// Lost an insert race against a concurrent login for the same name
	rows, err = h.store.Query(ctx,
		`SELECT userID, username, score, lastLogin FROM users WHERE username = ?`,
		username)
	if err != nil {
		return store.User{}, err
	}
	if len(rows) == 0 {
		return store.User{}, errUserVanished
	}
	return store.UserFromRow(rows[0]), nil
}

// handleChallenges lists every challenge ordered by id.
// Method: GET
// Response (200): []ChallengeView, [] when there are none
func (h *Handler) handleChallenges(ctx context.Context, req *protocol.Request) *protocol.Response {
	rows, err := h.store.Query(ctx,
		`SELECT challengeID, category, title, description, points, difficulty FROM challenges ORDER BY challengeID`)
	if err != nil {
		return h.storeFailure(err)
	}

	views := make([]ChallengeView, 0, len(rows))
	for _, row := range rows {
		views = append(views, FromChallenge(store.ChallengeFromRow(row)))
	}
	return protocol.JSON(http.StatusOK, views)
}

// handleProfile returns the user named by the userID query parameter.
// Method: GET
// Response (200): []ProfileView with zero or one entry
// Errors:
//   - 400 for a missing or non-numeric userID
func (h *Handler) handleProfile(ctx context.Context, req *protocol.Request) *protocol.Response {
	raw := req.Query.Get("userID")
	if raw == "" {
		return errorJSON(http.StatusBadRequest, "Missing userID")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errorJSON(http.StatusBadRequest, "Invalid userID")
	}

	rows, err := h.store.Query(ctx,
		`SELECT userID, username, score, lastLogin FROM users WHERE userID = ?`, userID)
	if err != nil {
		return h.storeFailure(err)
	}

	views := make([]ProfileView, 0, len(rows))
	for _, row := range rows {
		views = append(views, FromUserProfile(store.UserFromRow(row)))
	}
	return protocol.JSON(http.StatusOK, views)
}

// handleSolve records that a user solved a challenge. Repeats are no-ops.
// Method: POST
// Path: /api/challenges/{id} or /api/challenges/{id}/solve
// Request: {"userID": 1}
// Response (200): SolveResponse
// Errors:
//   - 400 for a bad challenge id, invalid JSON or missing userID
//   - 404 for an unknown challenge or user
func (h *Handler) handleSolve(ctx context.Context, req *protocol.Request) *protocol.Response {
	challengeID, ok := parseChallengeID(req.Path)
	if !ok {
		return errorJSON(http.StatusBadRequest, "Invalid challenge ID")
	}

	if !gjson.ValidBytes(req.Body) {
		return errorJSON(http.StatusBadRequest, "Invalid JSON")
	}
	userID, ok := parseUserID(gjson.GetBytes(req.Body, "userID"))
	if !ok {
		return errorJSON(http.StatusBadRequest, "Missing userID")
	}

	rows, err := h.store.Query(ctx, `SELECT challengeID FROM challenges WHERE challengeID = ?`, challengeID)
	if err != nil {
		return h.storeFailure(err)
	}
	if len(rows) == 0 {
		return errorJSON(http.StatusNotFound, "Challenge not found")
	}

	rows, err = h.store.Query(ctx, `SELECT userID FROM users WHERE userID = ?`, userID)
	if err != nil {
		return h.storeFailure(err)
	}
	if len(rows) == 0 {
		return errorJSON(http.StatusNotFound, "User not found")
	}

	rows, err = h.store.Query(ctx,
		`INSERT INTO solves (userID, challengeID, solvedAt) VALUES (?, ?, ?)
		ON CONFLICT (userID, challengeID) DO NOTHING
		RETURNING challengeID`,
		userID, challengeID, h.timestamp())
	if err != nil {
		return h.storeFailure(err)
	}
	if len(rows) > 0 {
		h.logger.Info().Int64("user_id", userID).Int64("challenge_id", challengeID).Msg("Challenge solved")
	}

	return protocol.JSON(http.StatusOK, SolveResponse{Success: true, Message: "Challenge solved"})
}

// parseChallengeID extracts {id} from /api/challenges/{id}[/solve]
func parseChallengeID(path string) (int64, bool) {
	tail := strings.TrimPrefix(path, challengesPrefix)
	tail = strings.TrimSuffix(tail, "/solve")
	id, err := strconv.ParseInt(tail, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseUserID accepts the id as a JSON number or a numeric string
func parseUserID(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num != float64(int64(v.Num)) || v.Num <= 0 {
			return 0, false
		}
		return v.Int(), true
	case gjson.String:
		id, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

func (h *Handler) storeFailure(err error) *protocol.Response {
	h.logger.Error().Err(err).Msg("Store query failed")
	if h.exposeErrors {
		return errorJSON(http.StatusInternalServerError, err.Error())
	}
	return errorJSON(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

func errorJSON(status int, msg string) *protocol.Response {
	return protocol.JSON(status, APIError{Error: msg})
}
