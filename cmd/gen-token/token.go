package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type tokenOptions struct {
	Secret   []byte
	TTL      time.Duration
	Audience string
	Issuer   string
}

// signToken returns an HS256 editor token accepted by the service in LOCAL_AUTH_MODE=hs256.
func signToken(opts tokenOptions, subject string, now time.Time) (string, error) {
	if len(opts.Secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(opts.TTL).Unix(),
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(opts.Secret)
}
