package magiclink

import (
	"net/http"

	"github.com/tech-arch1tect/payslip-auth/openapi"
	links "github.com/tech-arch1tect/payslip-auth/services/magiclink"
)

var rateLimitHeaders = map[string]string{
	"Retry-After":           "Seconds until the window resets",
	"X-RateLimit-Limit":     "Requests allowed per window",
	"X-RateLimit-Remaining": "Requests left in the window",
}

func (h *Handler) document(docs *openapi.OpenAPI) {
	docs.Tag("auth", "Passwordless sign-in with magic links").
		CookieAuth("sessionCookie", h.config.Session.Name, "Browser session established by a magic link")

	docs.Document(http.MethodPost, RequestPath).
		Summary("Request a magic link").
		OperationID("requestMagicLink").
		Tags("auth").
		Body(RequestLinkRequest{}, "Recipient of the login link").
		Response(http.StatusOK, RequestLinkResponse{}, "Link issued and sent").
		Response(http.StatusBadRequest, MessageResponse{}, "Malformed email address").
		Response(http.StatusNotFound, MessageResponse{}, "No account for the address").
		ResponseWithHeaders(http.StatusTooManyRequests, MessageResponse{}, "Too many requests", rateLimitHeaders).
		Response(http.StatusBadGateway, MessageResponse{}, "Email delivery failed").
		Build()

	docs.Document(http.MethodGet, links.ValidatePath).
		Summary("Sign in with a magic link").
		OperationID("validateMagicLink").
		Tags("auth").
		QueryParam("token", "Secret from the login link").Required().Done().
		QueryParam("email", "Address the link was sent to").Required().Format("email").Done().
		ResponseWithHeaders(http.StatusFound, nil, "Signed in", map[string]string{
			"Location":   "Post-login page",
			"Set-Cookie": "Session cookie",
		}).
		Response(http.StatusBadRequest, MessageResponse{}, msgInvalidLink).
		Response(http.StatusNotFound, MessageResponse{}, msgNoLinkIssued).
		Response(http.StatusServiceUnavailable, MessageResponse{}, msgNoSessions).
		Build()

	docs.Document(http.MethodGet, "/auth/me").
		Summary("Current account for the browser session").
		OperationID("sessionAccount").
		Tags("auth").
		Security("sessionCookie").
		Response(http.StatusOK, AccountResponse{}, "Signed-in account").
		Response(http.StatusUnauthorized, MessageResponse{}, "Not signed in").
		Build()

	docs.Document(http.MethodPost, "/auth/logout").
		Summary("End the browser session").
		OperationID("logout").
		Tags("auth").
		Response(http.StatusOK, MessageResponse{}, "Signed out").
		Build()

	if !h.tokensEnabled() {
		return
	}

	docs.BearerAuth("bearerAuth", "Access token from the verify endpoint")

	docs.Document(http.MethodPost, VerifyPath).
		Summary("Exchange a magic link for an access token").
		OperationID("verifyMagicLink").
		Tags("auth").
		Body(VerifyLinkRequest{}, "Link details").
		Response(http.StatusOK, TokenResponse{}, "Access token issued").
		Response(http.StatusBadRequest, MessageResponse{}, "Malformed request").
		Response(http.StatusUnauthorized, MessageResponse{}, msgInvalidLink).
		Build()

	docs.Document(http.MethodGet, "/api/auth/me").
		Summary("Current account for an access token").
		OperationID("tokenAccount").
		Tags("auth").
		Security("bearerAuth").
		Response(http.StatusOK, AccountResponse{}, "Authenticated account").
		Response(http.StatusUnauthorized, MessageResponse{}, "Missing or invalid token").
		Build()

	docs.Document(http.MethodPost, "/api/auth/logout").
		Summary("Revoke the presented access token").
		OperationID("tokenLogout").
		Tags("auth").
		Security("bearerAuth").
		Response(http.StatusOK, MessageResponse{}, "Token revoked").
		Response(http.StatusUnauthorized, MessageResponse{}, "Missing, invalid or revoked token").
		Build()
}
