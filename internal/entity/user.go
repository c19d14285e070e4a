package domain

import "time"

type Role string

const (
	RoleUser     Role = "user"
	RoleClient   Role = "client"
	RoleEmployee Role = "employee"
	RoleGuest    Role = "guest"
)

const MinPasswordLen = 8

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Guest        bool      `json:"guest"`
	Role         Role      `json:"role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Client struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	District string `json:"district"`
}

type Employee struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
}
