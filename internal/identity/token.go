// Package identity recovers caller identity from Gateway bearer tokens.
//
// Tokens are decoded, not verified: the Gateway's inbound authorizer has
// already validated the signature before any interceptor runs. Every
// failure degrades to "no identity" so callers can fail closed.
package identity

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimClientID = "client_id"
	ClaimGroups   = "cognito:groups"

	bearerPrefix   = "Bearer "
	logTokenPrefix = 12
)

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims decodes the payload segment of token. The second return value
// is false for anything that is not a three-segment token with a JSON
// object payload.
func Claims(token string) (jwt.MapClaims, bool) {
	token = strings.TrimPrefix(token, bearerPrefix)

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		slog.Debug("token is not a three-part JWT", "segments", len(parts), "token_prefix", prefix(token))
		return nil, false
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		slog.Debug("decode token payload", "token_prefix", prefix(token), "error", err)
		return nil, false
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims == nil {
		slog.Debug("parse token payload", "token_prefix", prefix(token), "error", err)
		return nil, false
	}
	return claims, true
}

// ClientID returns the client_id claim.
func ClientID(token string) (string, bool) {
	claims, ok := Claims(token)
	if !ok {
		return "", false
	}
	id, ok := claims[ClaimClientID].(string)
	if !ok || id == "" {
		slog.Debug("token has no client_id claim", "token_prefix", prefix(token))
		return "", false
	}
	slog.Debug("extracted client_id from token", "client_id", id)
	return id, true
}

// Groups returns the cognito:groups claim, or nil when absent.
// Non-string entries are skipped.
func Groups(token string) []string {
	claims, ok := Claims(token)
	if !ok {
		return nil
	}
	raw, ok := claims[ClaimGroups].([]any)
	if !ok {
		return nil
	}
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			groups = append(groups, s)
		}
	}
	slog.Debug("extracted groups from token", "count", len(groups))
	return groups
}

func prefix(token string) string {
	if len(token) <= logTokenPrefix {
		return token
	}
	return token[:logTokenPrefix] + "..."
}
