package genai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/danielmerja/music-virality-rater/internal/adapters/genai"
)

func chatBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	encoded, _ := json.Marshal(resp)
	return string(encoded)
}

const insightJSON = `{"insights":[
	{"icon":"🎯","category":"TARGET AUDIENCE","title":"Night drive playlists","description":"High impression scores suggest late-night listeners.","polarity":"success"},
	{"icon":"⚠️","category":"PRODUCTION","title":"Muddy low end","description":"Production quality lags the other dimensions.","polarity":"warning"},
	{"icon":"📈","category":"STRATEGY","title":"Short-form hooks","description":"Viral potential rewards a 15 second cut.","polarity":"shrug"}
]}`

func TestGenerateInsights(t *testing.T) {
	Convey("Given a generation client against a stub provider", t, func() {
		ctx := context.Background()

		Convey("When the provider returns a well formed payload", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				So(r.Header.Get("Authorization"), ShouldEqual, "Bearer test-key")
				w.Write([]byte(chatBody(insightJSON)))
			}))
			defer srv.Close()

			client := genai.NewClient(genai.Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
			insights, err := client.GenerateInsights(ctx, "system", "user", 3)

			Convey("Then all insights are returned normalized", func() {
				So(err, ShouldBeNil)
				So(len(insights), ShouldEqual, 3)
				So(insights[0].Polarity, ShouldEqual, "success")
				So(insights[1].Polarity, ShouldEqual, "warning")
				So(insights[2].Polarity, ShouldEqual, "default")
			})
		})

		Convey("When more insights come back than requested", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatBody(insightJSON)))
			}))
			defer srv.Close()

			client := genai.NewClient(genai.Config{APIKey: "test-key", BaseURL: srv.URL})
			insights, err := client.GenerateInsights(ctx, "system", "user", 2)

			Convey("Then the list is capped at the requested count", func() {
				So(err, ShouldBeNil)
				So(len(insights), ShouldEqual, 2)
			})
		})

		Convey("When the payload is wrapped in a code fence", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatBody("```json\n" + insightJSON + "\n```")))
			}))
			defer srv.Close()

			client := genai.NewClient(genai.Config{APIKey: "test-key", BaseURL: srv.URL})
			insights, err := client.GenerateInsights(ctx, "system", "user", 3)

			So(err, ShouldBeNil)
			So(len(insights), ShouldEqual, 3)
		})

		Convey("When the model returns a bare array", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatBody(`[{"icon":"🎵","category":"SOUND","title":"t","description":"d","polarity":"success"}]`)))
			}))
			defer srv.Close()

			client := genai.NewClient(genai.Config{APIKey: "test-key", BaseURL: srv.URL})
			insights, err := client.GenerateInsights(ctx, "system", "user", 3)

			So(err, ShouldBeNil)
			So(len(insights), ShouldEqual, 1)
		})

		Convey("When insights are missing required fields", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatBody(`{"insights":[{"icon":"x","category":"c","title":"","description":"d"}]}`)))
			}))
			defer srv.Close()

			client := genai.NewClient(genai.Config{APIKey: "test-key", BaseURL: srv.URL})
			_, err := client.GenerateInsights(ctx, "system", "user", 3)

			So(errors.Is(err, genai.ErrNoInsights), ShouldBeTrue)
		})

		Convey("When the API key is missing", func() {
			client := genai.NewClient(genai.Config{})
			_, err := client.GenerateInsights(ctx, "system", "user", 3)
			So(errors.Is(err, genai.ErrMissingAPIKey), ShouldBeTrue)
		})

		Convey("When the provider rate limits before succeeding", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.Header().Set("Retry-After", "1")
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				w.Write([]byte(chatBody(insightJSON)))
			}))
			defer srv.Close()

			var slept []time.Duration
			client := genai.NewClient(
				genai.Config{APIKey: "test-key", BaseURL: srv.URL},
				genai.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
			)
			insights, err := client.GenerateInsights(ctx, "system", "user", 3)

			Convey("Then the request is retried after the advertised delay", func() {
				So(err, ShouldBeNil)
				So(len(insights), ShouldEqual, 3)
				So(calls.Load(), ShouldEqual, 2)
				So(slept, ShouldResemble, []time.Duration{time.Second})
			})
		})

		Convey("When the provider rejects the request outright", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer srv.Close()

			client := genai.NewClient(genai.Config{APIKey: "bad-key", BaseURL: srv.URL})
			_, err := client.GenerateInsights(ctx, "system", "user", 3)

			Convey("Then no retry is attempted", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the provider keeps failing", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			client := genai.NewClient(
				genai.Config{APIKey: "test-key", BaseURL: srv.URL},
				genai.WithRetryAttempts(3),
				genai.WithSleeper(func(time.Duration) {}),
			)
			_, err := client.GenerateInsights(ctx, "system", "user", 3)

			Convey("Then all attempts are consumed", func() {
				So(err, ShouldNotBeNil)
				So(calls.Load(), ShouldEqual, 3)
			})
		})
	})
}

func TestDecodeModelJSON(t *testing.T) {
	Convey("Given tolerant JSON decoding", t, func() {
		Convey("It parses a plain object", func() {
			var out map[string]bool
			So(genai.DecodeModelJSON(`{"ok":true}`, &out), ShouldBeNil)
			So(out["ok"], ShouldBeTrue)
		})

		Convey("It extracts JSON embedded in prose", func() {
			var out map[string]bool
			So(genai.DecodeModelJSON(`Here is the result: {"ok":true} hope it helps`, &out), ShouldBeNil)
			So(out["ok"], ShouldBeTrue)
		})

		Convey("It rejects an empty payload", func() {
			var out map[string]bool
			So(genai.DecodeModelJSON("   ", &out), ShouldNotBeNil)
		})
	})
}
