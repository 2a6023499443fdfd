package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"schoolrecords/internal/records"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("schoolrecords", "secret", time.Hour)
	tok, err := iss.Issue(7, "teacher", "instructor", "Priya Nair")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Parse(tok.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID() != 7 || claims.Username != "teacher" || claims.Role != "instructor" || claims.DisplayName != "Priya Nair" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if tok.ExpiresAt.Before(time.Now().Add(59 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", tok.ExpiresAt)
	}
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("schoolrecords", "secret", time.Hour)
	tok, _ := iss.Issue(1, "a", "owner", "A")

	if _, err := NewIssuer("schoolrecords", "other", time.Hour).Parse(tok.AccessToken); err == nil {
		t.Fatalf("expected signature failure")
	}
	if _, err := NewIssuer("elsewhere", "secret", time.Hour).Parse(tok.AccessToken); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
	expired := NewIssuer("schoolrecords", "secret", time.Minute)
	expired.nowFn = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(1, "a", "owner", "A")
	if _, err := iss.Parse(old.AccessToken); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestIdentifySetsActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("schoolrecords", "secret", time.Hour)
	tok, _ := iss.Issue(3, "admin", "administrator", "Anil Kumar")

	r := gin.New()
	r.Use(Identify(iss))
	r.GET("/whoami", func(c *gin.Context) {
		a := records.ActorFrom(c.Request.Context())
		c.String(http.StatusOK, a.Name+"|"+a.Role)
	})

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", "System|system"},
		{"valid token", "Bearer " + tok.AccessToken, "Anil Kumar|administrator"},
		{"garbage token", "Bearer nope", "System|system"},
		{"not bearer", "Basic abc", "System|system"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK || rec.Body.String() != tc.want {
				t.Fatalf("got %d %q, want %q", rec.Code, rec.Body.String(), tc.want)
			}
		})
	}
}
