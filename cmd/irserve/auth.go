package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

type apiRole int

const (
	roleRead apiRole = iota
	roleWrite
)

// tokenHeader carries an API token when no Authorization header is sent
const tokenHeader = "X-IR-Token"

// visitorPaths are scoped by the session cookie and take no API token.
var visitorPaths = map[string]bool{
	"/api/events":  true,
	"/api/session": true,
}

type apiAuth struct {
	mode   string
	tokens map[string]apiRole
}

func (a apiAuth) enabled() bool {
	return a.mode != "disabled"
}

// Authorize reports whether r may act with the required role and whether
// it presented a known token at all.
func (a apiAuth) Authorize(r *http.Request, required apiRole) (bool, bool) {
	if !a.enabled() {
		return true, true
	}
	token := extractToken(r)
	if token == "" {
		return false, false
	}
	role, ok := a.tokens[token]
	if !ok {
		return false, false
	}
	if role == roleWrite || required == roleRead {
		return true, true
	}
	return false, true
}

func extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if strings.HasPrefix(auth, "Token ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Token "))
	}
	return strings.TrimSpace(r.Header.Get(tokenHeader))
}

func requiredRoleFor(r *http.Request) apiRole {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		return roleRead
	}
	return roleWrite
}

// buildAPIAuth parses comma-separated token lists. Token mode without any
// token gets a generated write token, returned so it can be reported.
func buildAPIAuth(mode, writeTokens, readTokens string) (apiAuth, string, error) {
	auth := apiAuth{
		mode:   strings.ToLower(strings.TrimSpace(mode)),
		tokens: make(map[string]apiRole),
	}
	switch auth.mode {
	case "":
		auth.mode = "token"
	case "token", "disabled":
	default:
		return apiAuth{}, "", fmt.Errorf("unknown api auth mode: %s", mode)
	}
	if !auth.enabled() {
		return auth, "", nil
	}

	addTokens := func(raw string, role apiRole) {
		for _, token := range strings.Split(raw, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			auth.tokens[token] = role
		}
	}
	addTokens(writeTokens, roleWrite)
	addTokens(readTokens, roleRead)

	var generated string
	if len(auth.tokens) == 0 {
		token, err := generateToken()
		if err != nil {
			return apiAuth{}, "", err
		}
		auth.tokens[token] = roleWrite
		generated = token
	}
	return auth, generated, nil
}

func generateToken() (string, error) {
	buffer := make([]byte, 24)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}
