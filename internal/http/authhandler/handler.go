package authhandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chathub/internal/auth"
)

const sessionCookie = "session_id"

type Handler struct {
	svc auth.IAuthService
}

func New(svc auth.IAuthService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.POST("/logout", h.logout)
	r.GET("/check_session", h.checkSession)
}

// @Summary		Register a new user
// @Description	Creates an account with a unique username.
// @Tags			Auth
// @Param			body	body		CredentialsBody	true	"Credentials"
// @Success		200		{object}	AuthResponse
// @Router			/register [post]
func (h *Handler) register(ginCtx *gin.Context) {
	var body CredentialsBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusOK, AuthResponse{Success: false, Message: "username and password are required"})
		return
	}

	err := h.svc.Register(ginCtx.Request.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		ginCtx.JSON(http.StatusOK, AuthResponse{Success: false, Message: "user already exists"})
	case errors.Is(err, auth.ErrEmptyCredentials):
		ginCtx.JSON(http.StatusOK, AuthResponse{Success: false, Message: "username and password are required"})
	case err != nil:
		ginCtx.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: err.Error()})
	default:
		ginCtx.JSON(http.StatusOK, AuthResponse{Success: true})
	}
}

// @Summary		Log in
// @Description	Verifies credentials and issues a session cookie.
// @Tags			Auth
// @Param			body	body		CredentialsBody	true	"Credentials"
// @Success		200		{object}	AuthResponse
// @Router			/login [post]
func (h *Handler) login(ginCtx *gin.Context) {
	var body CredentialsBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusOK, AuthResponse{Success: false, Message: "username and password are required"})
		return
	}

	sessionID, err := h.svc.Login(ginCtx.Request.Context(), body.Username, body.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		ginCtx.JSON(http.StatusOK, AuthResponse{Success: false, Message: "invalid username or password"})
		return
	}
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: err.Error()})
		return
	}

	ginCtx.SetCookie(sessionCookie, sessionID, 24*60*60, "/", "", false, true)
	ginCtx.JSON(http.StatusOK, AuthResponse{Success: true, SessionID: sessionID})
}

// @Summary		Log out
// @Description	Invalidates the session named by the session cookie.
// @Tags			Auth
// @Success		200	{object}	AuthResponse
// @Router			/logout [post]
func (h *Handler) logout(ginCtx *gin.Context) {
	sessionID, _ := ginCtx.Cookie(sessionCookie)
	_ = h.svc.Logout(ginCtx.Request.Context(), sessionID)
	ginCtx.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	ginCtx.JSON(http.StatusOK, AuthResponse{Success: true})
}

// @Summary		Check session
// @Description	Resolves the session cookie to a username, if still valid.
// @Tags			Auth
// @Success		200	{object}	SessionResponse
// @Router			/check_session [get]
func (h *Handler) checkSession(ginCtx *gin.Context) {
	sessionID, _ := ginCtx.Cookie(sessionCookie)
	username, err := h.svc.CheckSession(ginCtx.Request.Context(), sessionID)
	if err != nil {
		ginCtx.JSON(http.StatusOK, SessionResponse{Success: false})
		return
	}
	ginCtx.JSON(http.StatusOK, SessionResponse{Success: true, Username: username})
}
