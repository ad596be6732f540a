package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/message"
	"github.com/matheus3301/helpline/internal/room"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testClient starts a gin router built by routes and returns a client for it.
func testClient(t *testing.T, routes func(r *gin.Engine)) *Client {
	t.Helper()
	r := gin.New()
	routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return New(Options{BaseURL: ts.URL + "/", Timeout: 5 * time.Second})
}

func requireBearer(c *gin.Context, token string) bool {
	if c.GetHeader("Authorization") != "Bearer "+token {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return false
	}
	return true
}

func TestLoginDecodesMongoIDs(t *testing.T) {
	c := testClient(t, func(r *gin.Engine) {
		r.POST("/auth/login", func(c *gin.Context) {
			var req loginRequest
			if err := c.ShouldBindJSON(&req); err != nil || req.Email != "a@b.co" || req.Password != "secret" {
				c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"user":  gin.H{"_id": "u1", "name": "Asha", "email": "a@b.co"},
				"token": "tok",
			})
		})
	})

	res, err := c.Login(context.Background(), "a@b.co", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if res.Token != "tok" || res.User.ID != "u1" || res.User.Name != "Asha" {
		t.Errorf("unexpected auth response: %+v", res)
	}

	_, err = c.Login(context.Background(), "a@b.co", "wrong")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("bad credentials error = %v, want ErrAuth", err)
	}
	if msg := ServerMessage(err); msg != "Invalid credentials" {
		t.Errorf("ServerMessage = %q, want server body message", msg)
	}
}

func TestHistoryDecodesUnion(t *testing.T) {
	c := testClient(t, func(r *gin.Engine) {
		r.GET("/messages/:room", func(c *gin.Context) {
			if !requireBearer(c, "tok") {
				return
			}
			if c.Param("room") != "u1_u2" {
				c.JSON(http.StatusNotFound, gin.H{"message": "no such room"})
				return
			}
			c.Data(http.StatusOK, "application/json", []byte(`[
				{"_id":"m1","chatId":"u1_u2","sender":"u1","text":"hi","type":"text","timestamp":"2025-01-01T00:00:00Z"},
				{"_id":"m2","chatId":"u1_u2","sender":"u2","latitude":1.5,"longitude":2.5,"type":"location","timestamp":1735689600000}
			]`))
		})
	})

	msgs, err := c.History(context.Background(), "u1_u2", "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if txt, ok := msgs[0].(message.Text); !ok || txt.Body != "hi" {
		t.Errorf("msgs[0] = %+v, want text hi", msgs[0])
	}
	if loc, ok := msgs[1].(message.Location); !ok || loc.Latitude != 1.5 {
		t.Errorf("msgs[1] = %+v, want location", msgs[1])
	}
}

func TestHistoryFailuresAreUnavailable(t *testing.T) {
	c := testClient(t, func(r *gin.Engine) {
		r.GET("/messages/:room", func(c *gin.Context) {
			switch c.Param("room") {
			case "a_b":
				c.JSON(http.StatusUnauthorized, gin.H{"message": "expired"})
			case "c_d":
				c.JSON(http.StatusInternalServerError, gin.H{"message": "boom"})
			default:
				c.Data(http.StatusOK, "application/json", []byte(`[{"type":"sticker"}]`))
			}
		})
	})

	tests := []struct {
		room  string
		cause error
	}{
		{"a_b", ErrAuth},
		{"c_d", ErrNetwork},
		{"e_f", nil},
	}
	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			_, err := c.History(context.Background(), room.ID(tt.room), "tok")
			if !errors.Is(err, ErrHistoryUnavailable) {
				t.Fatalf("error = %v, want ErrHistoryUnavailable", err)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("error = %v, want cause %v", err, tt.cause)
			}
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	c := New(Options{BaseURL: ts.URL, Timeout: time.Second})

	_, err := c.Profile(context.Background(), "tok")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
}

func TestNearbyDecodesRequests(t *testing.T) {
	var gotQuery atomic.Value
	c := testClient(t, func(r *gin.Engine) {
		r.GET("/help/nearby", func(c *gin.Context) {
			gotQuery.Store(c.Request.URL.RawQuery)
			c.Data(http.StatusOK, "application/json", []byte(`[
				{"_id":"h1","user":{"_id":"u2","name":"Ravi"},"description":"flat tyre","location":{"type":"Point","coordinates":[77.6,12.9]}},
				{"id":"h2","user":"u3","description":"lost","coordinates":[77.7,13.0],"status":"open"}
			]`))
		})
	})

	reqs, err := c.Nearby(context.Background(), "tok", geo.Point{Latitude: 12.9, Longitude: 77.6}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if q := gotQuery.Load().(string); q != "latitude=12.9&longitude=77.6&radiusKm=10" {
		t.Errorf("query = %q", q)
	}
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	h1 := reqs[0]
	if h1.ID != "h1" || h1.RequesterID != "u2" || h1.RequesterName != "Ravi" || h1.Location.Latitude != 12.9 || h1.Location.Longitude != 77.6 {
		t.Errorf("h1 = %+v", h1)
	}
	h2 := reqs[1]
	if h2.ID != "h2" || h2.RequesterID != "u3" || h2.RequesterName != "" || h2.Location.Longitude != 77.7 || h2.Status != "open" {
		t.Errorf("h2 = %+v", h2)
	}
}

func TestPostHelpSendsLonLat(t *testing.T) {
	var got postHelpRequest
	c := testClient(t, func(r *gin.Engine) {
		r.POST("/help", func(c *gin.Context) {
			if !requireBearer(c, "tok") {
				return
			}
			if err := c.ShouldBindJSON(&got); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"_id": "h9"})
		})
	})

	if err := c.PostHelp(context.Background(), "tok", "need a jump start", geo.Point{Latitude: 1, Longitude: 2}); err != nil {
		t.Fatal(err)
	}
	if got.Description != "need a jump start" || got.Coordinates != [2]float64{2, 1} {
		t.Errorf("server got %+v, want lon,lat order", got)
	}
}

func TestAcceptConflictIsRejected(t *testing.T) {
	c := testClient(t, func(r *gin.Engine) {
		r.PUT("/help/:id/accept", func(c *gin.Context) {
			switch c.Param("id") {
			case "open":
				c.JSON(http.StatusOK, gin.H{"message": "accepted"})
			case "taken":
				c.JSON(http.StatusConflict, gin.H{"message": "already accepted"})
			case "gone":
				c.JSON(http.StatusGone, gin.H{"message": "closed"})
			default:
				c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			}
		})
	})

	ctx := context.Background()
	if err := c.Accept(ctx, "tok", "open"); err != nil {
		t.Errorf("Accept(open) = %v", err)
	}
	for _, id := range []string{"taken", "gone"} {
		if err := c.Accept(ctx, "tok", id); !errors.Is(err, ErrAcceptRejected) {
			t.Errorf("Accept(%s) = %v, want ErrAcceptRejected", id, err)
		}
	}
	if err := c.Accept(ctx, "tok", "missing"); !errors.Is(err, ErrNotFound) || errors.Is(err, ErrAcceptRejected) {
		t.Errorf("Accept(missing) = %v, want ErrNotFound only", err)
	}
}

func TestUserLookupsShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	c := testClient(t, func(r *gin.Engine) {
		r.GET("/users/:id", func(c *gin.Context) {
			hits.Add(1)
			<-release
			c.JSON(http.StatusOK, gin.H{"_id": c.Param("id"), "name": "Ravi"})
		})
	})

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			u, err := c.User(context.Background(), "u2", "tok")
			if err == nil && u.Name != "Ravi" {
				err = errors.New("wrong name " + u.Name)
			}
			errs <- err
		}()
	}
	// Let the callers pile up on the in-flight request.
	time.Sleep(100 * time.Millisecond)
	close(release)
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	c := testClient(t, func(r *gin.Engine) {
		r.PUT("/users/profile", func(c *gin.Context) {
			var req profileUpdate
			_ = c.ShouldBindJSON(&req)
			c.JSON(http.StatusOK, gin.H{"_id": "u1", "name": req.Name, "email": req.Email})
		})
	})

	u, err := c.UpdateProfile(context.Background(), "tok", "New Name", "n@x.io")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.Name != "New Name" || u.Email != "n@x.io" {
		t.Errorf("profile = %+v", u)
	}
}
