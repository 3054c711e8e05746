package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyValidator(t *testing.T) {
	type seen struct {
		user, scope, key string
	}
	var got []seen
	lookup := func(_ context.Context, user, scope, key string, _ time.Time) (bool, error) {
		got = append(got, seen{user, scope, key})
		switch key {
		case "replayed":
			return true, nil
		case "broken":
			return false, errors.New("db down")
		}
		return false, nil
	}

	r := newEngine(Auth(AuthOptions{}), IdempotencyValidator(IdempotencyOptions{Scope: "POST:/generations", MaxLen: 16}, lookup))
	r.POST("/generations", func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{
			"key":    key,
			"has":    ok,
			"replay": IsReplay(c),
			"bypass": IsRateBypass(c),
		})
	})

	do := func(key string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/generations", nil)
		req.Header.Set(HeaderUserID, "u1")
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(""); !strings.Contains(w.Body.String(), `"has":false`) || len(got) != 0 {
		t.Fatalf("no header: body=%s lookups=%d", w.Body.String(), len(got))
	}

	for _, bad := range []string{"has space", "semi;colon", strings.Repeat("a", 17)} {
		w := do(bad)
		if w.Code != http.StatusBadRequest || decodeEnvelope(t, w)["code"] != "bad_idempotency_key" {
			t.Fatalf("key %q: status %d body %s", bad, w.Code, w.Body.String())
		}
	}

	w := do("fresh-key")
	if !strings.Contains(w.Body.String(), `"replay":false`) || !strings.Contains(w.Body.String(), `"key":"fresh-key"`) {
		t.Fatalf("fresh: %s", w.Body.String())
	}
	if last := got[len(got)-1]; last != (seen{"u1", "POST:/generations", "fresh-key"}) {
		t.Fatalf("lookup args = %+v", last)
	}

	w = do("replayed")
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("replay: %s", w.Body.String())
	}

	if w := do("broken"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("lookup error should not block: %d %s", w.Code, w.Body.String())
	}
}
