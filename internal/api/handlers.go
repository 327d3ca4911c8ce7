package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"termchat/internal/assistant"
	"termchat/internal/auth"
	"termchat/internal/chat"
	"termchat/internal/feed"
	"termchat/internal/models"
)

// Handler wires HTTP routes to the chat service, access controller, and
// change feed relay.
type Handler struct {
	chat   *chat.Service
	auth   *auth.Service
	grants *auth.Grants
	bridge *assistant.Bridge
	feed   feed.Feed
}

// NewHandler constructs a Handler instance. The bridge may be nil when no
// assistant provider is configured.
func NewHandler(chatService *chat.Service, authService *auth.Service, grants *auth.Grants, bridge *assistant.Bridge) *Handler {
	return &Handler{
		chat:   chatService,
		auth:   authService,
		grants: grants,
		bridge: bridge,
		feed:   chatService.Feed(),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)

	authMW := h.auth.Middleware()
	csrfMW := h.auth.CSRFMiddleware()

	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), csrfMW)
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.PATCH("/display-name", h.updateDisplayName)
	userRoutes.POST("/password", h.changePassword)
	userRoutes.GET("/rooms", h.listOwnedRooms)
	userRoutes.DELETE("", h.deleteUser)

	roomRoutes := api.Group("/rooms")
	roomRoutes.Use(authMW, csrfMW)
	roomRoutes.POST("", h.createRoom)
	roomRoutes.POST("/:room_id/join", h.joinRoom)
	roomRoutes.POST("/:room_id/key", h.rotateKey)

	msgRoutes := api.Group("/messages")
	msgRoutes.Use(authMW, csrfMW)
	msgRoutes.GET("", h.listMessages)
	msgRoutes.POST("", h.sendMessage)
	msgRoutes.DELETE("/:message_id", h.deleteMessage)

	api.GET("/feed", authMW, h.streamFeed)
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// renderError maps the chat error taxonomy onto HTTP statuses.
func renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrUnauthorized), errors.Is(err, chat.ErrInvalidKey):
		status = http.StatusForbidden
	case errors.Is(err, chat.ErrRemote):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// User create&login interface
type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.chat.RegisterUser(c.Request.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"created_at":   user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.chat.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"created_at":   user.CreatedAt,
		"auth_token":   authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
		h.grants.Revoke(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.chat.DeleteUser(c.Request.Context(), id); err != nil {
		renderError(c, err)
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateDisplayName(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.chat.UpdateDisplayName(c.Request.Context(), userID, req.DisplayName); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) changePassword(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Current string `json:"current_password"`
		Next    string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.chat.ChangePassword(c.Request.Context(), userID, req.Current, req.Next); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listOwnedRooms(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	rooms, err := h.chat.ListRoomsOwnedBy(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rooms == nil {
		rooms = make([]models.Room, 0)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) createRoom(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.chat.CreateRoom(c.Request.Context(), userID, req.Name)
	if err != nil {
		renderError(c, err)
		return
	}
	// The creating session knows the key; admit it without a join round-trip.
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		h.grants.Grant(c.Request.Context(), authToken, room.ID)
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         room.ID,
		"name":       room.Name,
		"access_key": room.AccessKey,
		"owner_id":   room.OwnerID,
		"created_at": room.CreatedAt,
	})
}

func (h *Handler) joinRoom(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	var req struct {
		AccessKey string `json:"access_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.chat.JoinRoom(c.Request.Context(), c.Param("room_id"), req.AccessKey)
	if err != nil {
		renderError(c, err)
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		h.grants.Grant(c.Request.Context(), authToken, room.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         room.ID,
		"name":       room.Name,
		"owner_id":   room.OwnerID,
		"created_at": room.CreatedAt,
	})
}

func (h *Handler) rotateKey(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		AccessKey string `json:"access_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, err := h.chat.RotateKey(c.Request.Context(), c.Param("room_id"), userID, req.AccessKey)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         room.ID,
		"name":       room.Name,
		"access_key": room.AccessKey,
	})
}

// requireScopeAccess resolves the scope from the room query/body value and
// verifies the session holds a grant for non-public scopes.
func (h *Handler) requireScopeAccess(c *gin.Context, roomID string) (models.Scope, bool) {
	scope := models.Scope{RoomID: strings.TrimSpace(roomID)}
	if scope.Public() {
		return scope, true
	}
	authToken, _ := auth.AuthTokenFromContext(c)
	if !h.grants.Allowed(c.Request.Context(), authToken, scope.RoomID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "join the room before reading or posting"})
		return models.Scope{}, false
	}
	return scope, true
}

func (h *Handler) listMessages(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	scope, ok := h.requireScopeAccess(c, c.Query("room"))
	if !ok {
		return
	}
	messages, err := h.chat.ListMessages(c.Request.Context(), scope)
	if err != nil {
		renderError(c, err)
		return
	}
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	Body   string `json:"body"`
	RoomID string `json:"room_id"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	scope, ok := h.requireScopeAccess(c, req.RoomID)
	if !ok {
		return
	}
	user, err := h.chat.GetUser(c.Request.Context(), userID)
	if err != nil {
		renderError(c, err)
		return
	}
	sender := models.AccountSender(user.ID, user.DisplayName)
	msg, err := h.chat.SendMessage(c.Request.Context(), sender, scope, req.Body)
	if err != nil {
		renderError(c, err)
		return
	}
	if h.bridge != nil {
		h.bridge.HandleMessage(msg)
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handler) deleteMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	if err := h.chat.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// streamFeed relays change-feed events to the client over SSE. Scope
// filtering stays client-side in the synchronizer; the relay only fans the
// collection stream out.
func (h *Handler) streamFeed(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	events := make(chan feed.Event, 64)
	cancel, err := h.feed.Subscribe(c.Request.Context(), func(ev feed.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Op, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
