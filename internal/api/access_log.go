package api

import (
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/gorilla/handlers"
)

// accessLog writes the combined log format with the token query parameter
// redacted, since dashboard links carry the JWT in the URL.
func accessLog(w io.Writer, p handlers.LogFormatterParams) {
	host, _, err := net.SplitHostPort(p.Request.RemoteAddr)
	if err != nil {
		host = p.Request.RemoteAddr
	}
	user := "-"
	if p.URL.User != nil && p.URL.User.Username() != "" {
		user = p.URL.User.Username()
	}
	referer, agent := p.Request.Referer(), p.Request.UserAgent()
	if referer == "" {
		referer = "-"
	}
	if agent == "" {
		agent = "-"
	}
	fmt.Fprintf(w, "%s - %s [%s] \"%s %s %s\" %d %d \"%s\" \"%s\"\n",
		host, user, p.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
		p.Request.Method, redactedURI(p.URL), p.Request.Proto,
		p.StatusCode, p.Size, referer, agent)
}

func redactedURI(u url.URL) string {
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.RequestURI()
}
