package model

type LoginRequest struct {
	Address string `json:"address" binding:"required,walletaddr"`
	Role    string `json:"role" binding:"required,oneof=patient doctor"`
}

type TokenResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
	Role    string `json:"role"`
}
