package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookieName = "token"

	// ProcedureKey is the gin context key the request logger reads.
	ProcedureKey = "rpc.procedure"
)

// SessionCookie carries a freshly issued token. Its lifetime matches the token's.
func SessionCookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func ClearSessionCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// TokenFromRequest reads the session cookie, then an Authorization bearer.
// No token is not an error here; the tier gate decides what that means.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// ServeRPC is the gin handler mounted on /rpc/:procedure.
func (d *Dispatcher) ServeRPC(ctx *gin.Context) {
	name := ctx.Param("procedure")
	ctx.Set(ProcedureKey, name)

	p, ok := d.procs[name]
	if !ok {
		writeEnvelope(ctx, NotFound("Unknown procedure"))
		return
	}

	var input json.RawMessage

	switch {
	case p.Kind == Query && ctx.Request.Method == http.MethodGet:
		if raw := ctx.Query("input"); raw != "" {
			input = json.RawMessage(raw)
		}

	case p.Kind == Mutation && ctx.Request.Method == http.MethodPost:
		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeEnvelope(ctx, Fail(http.StatusRequestEntityTooLarge, "Request body too large"))
				return
			}
			writeEnvelope(ctx, BadRequest("Could not read request body"))
			return
		}
		input = body

	default:
		allow := http.MethodPost
		if p.Kind == Query {
			allow = http.MethodGet
		}
		ctx.Header("Allow", allow)
		writeEnvelope(ctx, Fail(http.StatusMethodNotAllowed, p.Kind.String()+" procedures use "+allow))
		return
	}

	env := d.invoke(ctx.Request.Context(), p, TokenFromRequest(ctx.Request), input)

	if c := env.Cookie(); c != nil {
		http.SetCookie(ctx.Writer, c)
	}

	if p.Kind == Query && env.Status == http.StatusOK {
		writeEnvelopeWithETag(ctx, env)
		return
	}

	writeEnvelope(ctx, env)
}

func writeEnvelope(ctx *gin.Context, env Envelope) {
	ctx.JSON(env.Status, env)
}

func writeEnvelopeWithETag(ctx *gin.Context, env Envelope) {
	etag, err := buildETag(env)
	if err != nil {
		writeEnvelope(ctx, env)
		return
	}

	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "private, no-cache")

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	writeEnvelope(ctx, env)
}
