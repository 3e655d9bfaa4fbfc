// Package user provides marketplace accounts, resumes and preference tags.
package user

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username is taken")
)

// User is a marketplace account. Every account may both buy and sell.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsBuyer      bool      `json:"is_buyer"`
	IsSeller     bool      `json:"is_seller"`
	Resume       string    `json:"resume"`
	Preferences  []string  `json:"preferences"`
	CreatedAt    time.Time `json:"created_at"`
}

// clone returns a deep copy of u.
func (u *User) clone() *User {
	c := *u
	c.Preferences = append([]string(nil), u.Preferences...)
	if c.Preferences == nil {
		c.Preferences = []string{}
	}
	return &c
}
