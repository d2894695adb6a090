package models

type RegisterReq struct {
	DisplayName string `json:"displayName" binding:"required,max=64"`
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,username"`
	Password    string `json:"password" binding:"required,password"`
}

// LoginReq identifies the user by email or username.
type LoginReq struct {
	Email    string `json:"email" binding:"omitempty,email"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

type TokenRes struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type SuccessRes struct {
	Success bool `json:"success"`
}

type ErrorRes struct {
	Error string `json:"error"`
}

type MeRes struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type HealthRes struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
