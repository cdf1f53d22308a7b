package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_botgraph/internal/engine"
)

const sampleResponse = `{
  "items": [
    {
      "id": "UCaaaaaaaaaaaaaaaaaaaaaa",
      "snippet": {
        "title": "Sample Channel",
        "description": "A channel",
        "customUrl": "@samplechannel",
        "country": "US",
        "publishedAt": "2019-03-01T12:00:00Z",
        "thumbnails": {
          "default": {"url": "https://yt3.ggpht.com/a=s88-c"},
          "high": {"url": "https://yt3.ggpht.com/a=s800-c"}
        }
      },
      "statistics": {
        "subscriberCount": "1234",
        "hiddenSubscriberCount": false,
        "videoCount": "56",
        "viewCount": "789000"
      },
      "brandingSettings": {
        "image": {"bannerExternalUrl": "https://yt3.ggpht.com/banner"}
      }
    }
  ]
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key", 1000)
	c.baseURL = srv.URL
	return c
}

func TestFetchByID(t *testing.T) {
	var gotIDs string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("id")
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key in request")
		}
		fmt.Fprint(w, sampleResponse)
	})

	ids := []string{"UCaaaaaaaaaaaaaaaaaaaaaa", "UCgoneaaaaaaaaaaaaaaaaaa"}
	out, perID, err := c.FetchByID(context.Background(), ids)
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if gotIDs != strings.Join(ids, ",") {
		t.Errorf("requested ids = %q, want %q", gotIDs, strings.Join(ids, ","))
	}

	meta, ok := out["UCaaaaaaaaaaaaaaaaaaaaaa"]
	if !ok {
		t.Fatal("resolved channel missing from result")
	}
	if meta.Title != "Sample Channel" || meta.Handle != "@samplechannel" {
		t.Errorf("snippet fields wrong: %+v", meta)
	}
	if meta.AvatarURL != "https://yt3.ggpht.com/a=s800-c" {
		t.Errorf("AvatarURL = %q, want high thumbnail", meta.AvatarURL)
	}
	if meta.SubscriberCount != 1234 || meta.ViewCount != 789000 {
		t.Errorf("counts wrong: %+v", meta)
	}
	if len(meta.Raw) == 0 {
		t.Error("raw item not retained")
	}

	// The API silently omits deleted channels; they must surface per-ID.
	if !errors.Is(perID["UCgoneaaaaaaaaaaaaaaaaaa"], engine.ErrChannelNotFound) {
		t.Errorf("omitted id error = %v, want ErrChannelNotFound", perID["UCgoneaaaaaaaaaaaaaaaaaa"])
	}
}

func TestFetchByIDBatching(t *testing.T) {
	var calls int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if n := len(strings.Split(r.URL.Query().Get("id"), ",")); n > 50 {
			t.Errorf("batch of %d ids exceeds API limit", n)
		}
		fmt.Fprint(w, `{"items":[]}`)
	})

	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("UCid%020d", i)
	}
	_, perID, err := c.FetchByID(context.Background(), ids)
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 batches for 120 ids", calls)
	}
	if len(perID) != 120 {
		t.Errorf("perID entries = %d, want 120 not-found", len(perID))
	}
}

func TestFetchByIDAuthFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"bad key","errors":[{"reason":"keyInvalid"}]}}`)
	})

	_, _, err := c.FetchByID(context.Background(), []string{"UCaaaaaaaaaaaaaaaaaaaaaa"})
	if !errors.Is(err, engine.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestFetchByIDQuotaIsPerID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`)
	})

	out, perID, err := c.FetchByID(context.Background(), []string{"UCaaaaaaaaaaaaaaaaaaaaaa"})
	if err != nil {
		t.Fatalf("quota must not be a batch error, got %v", err)
	}
	if len(out) != 0 {
		t.Errorf("out = %v, want empty", out)
	}
	if !errors.Is(perID["UCaaaaaaaaaaaaaaaaaaaaaa"], engine.ErrQuotaExceeded) {
		t.Errorf("perID error = %v, want ErrQuotaExceeded", perID["UCaaaaaaaaaaaaaaaaaaaaaa"])
	}
}
