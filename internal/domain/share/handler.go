package share

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/auth"
	"github.com/carevault/carevault/pkg/pagination"
)

type Handler struct {
	svc     *Service
	baseURL string
	logger  zerolog.Logger
}

// NewHandler creates the share handler. baseURL is the public prefix a
// token is appended to when building share URLs.
func NewHandler(svc *Service, baseURL string, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, baseURL: baseURL, logger: logger}
}

// RegisterRoutes mounts the share endpoints on g. The public resolve route
// only gets limiter; every owner route gets requireAuth.
func (h *Handler) RegisterRoutes(g *echo.Group, requireAuth, limiter echo.MiddlewareFunc) {
	owner := auth.RequireRole("patient", "doctor")

	g.POST("/prescriptions/:id", h.CreateShare, requireAuth, owner)
	g.GET("/prescriptions/:id", h.ListShares, requireAuth, owner)
	g.DELETE("/prescriptions/:id", h.RevokeAll, requireAuth, owner)
	g.DELETE("/tokens/:id", h.RevokeToken, requireAuth, owner)

	g.GET("/:token", h.Resolve, limiter)
}

type createShareRequest struct {
	ExpiresIn string `json:"expires_in"`
}

type createShareResponse struct {
	ID        uuid.UUID  `json:"id"`
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	TokenHint string     `json:"token_hint"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type shareSummary struct {
	*ShareToken
	State string `json:"state"`
}

type revokeResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// Resolve serves GET /share/:token. Every failure cause renders the same
// 404 body.
func (h *Handler) Resolve(c echo.Context) error {
	view, err := h.svc.Resolve(c.Request().Context(), c.Param("token"))
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) CreateShare(c echo.Context) error {
	prescriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req createShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var ttl time.Duration
	if req.ExpiresIn != "" {
		ttl, err = time.ParseDuration(req.ExpiresIn)
		if err != nil || ttl <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "expires_in must be a positive duration such as 72h")
		}
	}

	t, err := h.svc.Share(c.Request().Context(), prescriptionID, userID, ttl)
	if err != nil {
		return h.httpError(c, err)
	}

	return c.JSON(http.StatusCreated, createShareResponse{
		ID:        t.ID,
		Token:     t.Token,
		URL:       h.baseURL + "/" + t.Token,
		TokenHint: t.TokenHint,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
	})
}

func (h *Handler) ListShares(c echo.Context) error {
	prescriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	tokens, err := h.svc.List(c.Request().Context(), prescriptionID, userID)
	if err != nil {
		return h.httpError(c, err)
	}

	pg := pagination.FromContext(c)
	now := time.Now()
	items := make([]shareSummary, 0, pg.Limit)
	for _, t := range pagination.Slice(tokens, pg) {
		items = append(items, shareSummary{ShareToken: t, State: t.State(now)})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, len(tokens), pg.Limit, pg.Offset))
}

// RevokeAll serves DELETE /share/prescriptions/:id.
func (h *Handler) RevokeAll(c echo.Context) error {
	prescriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	n, err := h.svc.RevokeAll(c.Request().Context(), prescriptionID, userID)
	if err != nil {
		return h.httpError(c, err)
	}
	return c.JSON(http.StatusOK, revokeResponse{RevokedCount: n})
}

func (h *Handler) RevokeToken(c echo.Context) error {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid share link id")
	}
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	changed, err := h.svc.RevokeToken(c.Request().Context(), tokenID, userID)
	if err != nil {
		return h.httpError(c, err)
	}
	resp := revokeResponse{}
	if changed {
		resp.RevokedCount = 1
	}
	return c.JSON(http.StatusOK, resp)
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	return id, nil
}

func (h *Handler) httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return echo.NewHTTPError(http.StatusNotFound, ErrInvalidToken.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}

	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("method", c.Request().Method).
		Str("route", c.Path()).
		Msg("share request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
