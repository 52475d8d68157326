package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Claims is the payload of an HS256 custom token.
type Claims struct {
	Sub string `json:"sub"`
	Aud string `json:"aud,omitempty"`
	Exp int64  `json:"exp,omitempty"`
	Iat int64  `json:"iat,omitempty"`
}

// SignToken signs claims with HS256. Exp defaults to ttl from now.
func SignToken(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	if claims.Sub == "" {
		return "", errors.New("sub is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now().UTC().Unix()
	if claims.Iat == 0 {
		claims.Iat = now
	}
	if claims.Exp == 0 {
		claims.Exp = now + int64(ttl/time.Second)
	}

	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signingInput + "." + sign(signingInput, secret), nil
}

// JWTVerifier checks HS256 custom tokens minted with SignToken.
type JWTVerifier struct {
	Secret   []byte
	Audience string
}

// Verify returns the token subject.
func (v JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(v.Secret) == 0 {
		return "", ErrMissingSecret
	}

	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	expected := sign(parts[0]+"."+parts[1], v.Secret)
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", ErrInvalidToken
	}
	if claims.Sub == "" {
		return "", ErrInvalidToken
	}
	if v.Audience != "" && claims.Aud != v.Audience {
		return "", fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.Exp > 0 && time.Now().UTC().Unix() > claims.Exp {
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return claims.Sub, nil
}

func sign(input string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleVerifier treats the token as a Google OAuth access token and resolves
// it through the userinfo endpoint.
type GoogleVerifier struct {
	UserInfoURL string
	// HTTPClient is the base transport; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

type googleUserInfo struct {
	Sub string `json:"sub"`
	ID  string `json:"id"`
}

// Verify returns "google:<sub>" for a valid access token.
func (v GoogleVerifier) Verify(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	endpoint := v.UserInfoURL
	if endpoint == "" {
		endpoint = defaultUserInfoURL
	}
	if v.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.HTTPClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	// Some responses use "id" instead of "sub".
	if info.Sub == "" {
		info.Sub = info.ID
	}
	if info.Sub == "" {
		return "", ErrInvalidToken
	}
	return "google:" + info.Sub, nil
}
