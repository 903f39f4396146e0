package entity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Password     string     `json:"-"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	Role         string     `json:"role"`
	AnonymizedAt *time.Time `json:"anonymized_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type JwtCustomClaims struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

/*
Mysql Schema:
CREATE TABLE users (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL,
	password VARCHAR(255) NOT NULL,
	...
);

CREATE UNIQUE INDEX email_idx ON users(email);
*/
