package authhandler

type CredentialsBody struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"hunter2"`
} // @name CredentialsRequest

type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
} // @name AuthResponse

type SessionResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
} // @name SessionResponse
