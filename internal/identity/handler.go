package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// AccessTokenTTL matches the teacher's short-lived access token window.
const AccessTokenTTL = 30 * time.Minute

// Handler exposes the registration/login surface over HTTP. It is wired
// independently of the bidding path: nothing in admission, finalize, or the
// gateway's broadcast path calls into this package, only the token it mints
// is later presented back to gateway.Handle.
type Handler struct {
	store     *Store
	jwtSecret string
}

// NewHandler constructs a Handler.
func NewHandler(store *Store, jwtSecret string) *Handler {
	if store == nil || jwtSecret == "" {
		panic("nil store or empty secret passed to identity.NewHandler")
	}
	return &Handler{store: store, jwtSecret: jwtSecret}
}

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	ParticipantID string    `json:"participantId"`
	Token         string    `json:"token"`
	Expires       time.Time `json:"expires"`
}

// Register handles POST /identity/register.
func (h *Handler) Register(c echo.Context) error {
	var body credentialsBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	p, err := h.store.Register(body.Username, body.Password)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already registered"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return h.respondWithToken(c, http.StatusCreated, p.ID, p.Username)
}

// Login handles POST /identity/login.
func (h *Handler) Login(c echo.Context) error {
	var body credentialsBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	p, err := h.store.Authenticate(body.Username, body.Password)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.respondWithToken(c, http.StatusOK, p.ID, p.Username)
}

func (h *Handler) respondWithToken(c echo.Context, status int, participantID, username string) error {
	token, exp, err := IssueToken(h.jwtSecret, participantID, username, AccessTokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(status, tokenResponse{ParticipantID: participantID, Token: token, Expires: exp})
}

// Register mounts the identity routes under /identity.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/identity")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
}
