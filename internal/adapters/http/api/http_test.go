package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/pitwall/internal/adapters/http/api"
	eventqueue "github.com/okian/pitwall/internal/adapters/mq/queue"
	repository "github.com/okian/pitwall/internal/adapters/repository"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/report"
	"github.com/okian/pitwall/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	mu        sync.Mutex
	seen      map[string]bool
	submitted []model.Observation
	submitErr error

	competitors map[string]types.Competitor
	rows        []report.Row
	lastLimit   int
	summary     service.Summary
	recompErr   error
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		seen: make(map[string]bool),
		competitors: map[string]types.Competitor{
			"Lando Norris McLaren": {
				Name:   "Lando Norris McLaren",
				Tier:   "A",
				Value:  30.0,
				Events: 1,
				History: []types.HistoryLine{
					{Event: "Bahrain", Kind: "rich", Record: "20 pts | $30.0M | +0.2M"},
				},
			},
		},
	}
}

func (m *mockDeps) Submit(_ context.Context, obs model.Observation) (service.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return service.SubmitResult{ID: obs.ID}, m.submitErr
	}
	if err := obs.Validate(); err != nil {
		return service.SubmitResult{}, err
	}
	if obs.ID == "" {
		obs.ID = fmt.Sprintf("generated-%d", len(m.submitted))
	}
	if m.seen[obs.ID] {
		return service.SubmitResult{ID: obs.ID, Duplicate: true}, nil
	}
	m.seen[obs.ID] = true
	m.submitted = append(m.submitted, obs)
	return service.SubmitResult{ID: obs.ID}, nil
}

func (m *mockDeps) Competitors(context.Context) []types.Competitor {
	out := make([]types.Competitor, 0, len(m.competitors))
	for _, c := range m.competitors {
		out = append(out, c)
	}
	return out
}

func (m *mockDeps) Competitor(_ context.Context, name string) (types.Competitor, error) {
	c, ok := m.competitors[name]
	if !ok {
		return types.Competitor{}, fmt.Errorf("competitor %q: %w", name, repository.ErrNotFound)
	}
	return c, nil
}

func (m *mockDeps) Report(_ context.Context, limit int) []report.Row {
	m.lastLimit = limit
	if limit > 0 && limit < len(m.rows) {
		return m.rows[:limit]
	}
	return m.rows
}

func (m *mockDeps) Recompute(context.Context) (service.Summary, error) {
	return m.summary, m.recompErr
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "competitors": len(m.competitors)}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

const validObservation = `{"id":"obs-1","competitor":"Oscar Piastri McLaren","value":26.0,"trend":0.1,
"events":[{"name":"Bahrain","points":12},{"name":"Jeddah","points":18}]}`

func TestServer_Observations(t *testing.T) {
	Convey("Given the API router", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Router(context.Background())

		Convey("When a single observation is posted", func() {
			w := do(h, http.MethodPost, "/observations", validObservation)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var ack map[string]any
				decode(w, &ack)
				So(ack["status"], ShouldEqual, "accepted")
				So(ack["id"], ShouldEqual, "obs-1")
				So(len(deps.submitted), ShouldEqual, 1)
				So(deps.submitted[0].Events[1].Points, ShouldEqual, 18)
			})

			Convey("And posting it again is a duplicate", func() {
				w := do(h, http.MethodPost, "/observations", validObservation)
				So(w.Code, ShouldEqual, http.StatusOK)
				var ack map[string]any
				decode(w, &ack)
				So(ack["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When the body is malformed", func() {
			w := do(h, http.MethodPost, "/observations", `{"competitor":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the observation is invalid", func() {
			w := do(h, http.MethodPost, "/observations", `{"competitor":"","value":1}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			var e map[string]string
			decode(w, &e)
			So(e["code"], ShouldEqual, "bad_request")
		})

		Convey("When events are out of order", func() {
			w := do(h, http.MethodPost, "/observations",
				`{"competitor":"x","value":1,"events":[{"name":"b","points":1,"round":2},{"name":"a","points":1,"round":1}]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the queue is full", func() {
			deps.submitErr = eventqueue.ErrFull
			w := do(h, http.MethodPost, "/observations", validObservation)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("When the service is not started", func() {
			deps.submitErr = service.ErrNotStarted
			w := do(h, http.MethodPost, "/observations", validObservation)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When a batch is posted", func() {
			body := `{"observations":[` + validObservation + `,` + validObservation + `,{"competitor":""}]}`
			w := do(h, http.MethodPost, "/observations", body)

			Convey("Then each item gets its own result", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var resp struct {
					Accepted  int `json:"accepted"`
					Duplicate int `json:"duplicate"`
					Rejected  int `json:"rejected"`
					Results   []struct {
						Status string `json:"status"`
					} `json:"results"`
				}
				decode(w, &resp)
				So(resp.Accepted, ShouldEqual, 1)
				So(resp.Duplicate, ShouldEqual, 1)
				So(resp.Rejected, ShouldEqual, 1)
				So(resp.Results[2].Status, ShouldEqual, "rejected")
			})
		})

		Convey("When an empty batch is posted", func() {
			w := do(h, http.MethodPost, "/observations", `{"observations":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a single observation mentions observations in its values", func() {
			w := do(h, http.MethodPost, "/observations",
				`{"competitor":"observations","value":2.5,"events":[{"name":"observations","points":4}]}`)

			Convey("Then it is still treated as one observation", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(len(deps.submitted), ShouldEqual, 1)
				So(deps.submitted[0].Competitor, ShouldEqual, "observations")
				So(deps.submitted[0].Events[0].Points, ShouldEqual, 4)
			})
		})

		Convey("When the body is a JSON array", func() {
			w := do(h, http.MethodPost, "/observations", `[`+validObservation+`]`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_RateLimit(t *testing.T) {
	Convey("Given a router with a tight ingestion limit", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps, api.WithIngestRateLimit(0.001, 1)).Router(context.Background())

		Convey("When the same client posts twice", func() {
			first := do(h, http.MethodPost, "/observations", validObservation)
			second := do(h, http.MethodPost, "/observations", validObservation)

			Convey("Then the second request is rate limited", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				So(second.Header().Get("Retry-After"), ShouldNotBeBlank)
			})
		})

		Convey("When reads are made", func() {
			for i := 0; i < 3; i++ {
				So(do(h, http.MethodGet, "/stats", "").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestServer_Competitors(t *testing.T) {
	Convey("Given the API router", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps).Router(context.Background())

		Convey("When listing competitors", func() {
			w := do(h, http.MethodGet, "/competitors", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var list []types.Competitor
			decode(w, &list)
			So(len(list), ShouldEqual, 1)
		})

		Convey("When a known competitor is requested", func() {
			w := do(h, http.MethodGet, "/competitors/Lando%20Norris%20McLaren", "")

			Convey("Then the view with history is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var c types.Competitor
				decode(w, &c)
				So(c.Tier, ShouldEqual, "A")
				So(c.History[0].Record, ShouldEqual, "20 pts | $30.0M | +0.2M")
			})
		})

		Convey("When an unknown competitor is requested", func() {
			w := do(h, http.MethodGet, "/competitors/nobody", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Report(t *testing.T) {
	Convey("Given the API router with a report limit", t, func() {
		deps := newMockDeps()
		deps.rows = []report.Row{
			{Rank: 1, Tier: "A", Name: "a", Value: 20, ToExcellent: 10, Computed: true},
			{Rank: 2, Tier: "B", Name: "b", Value: 5, ToExcellent: 12, Computed: true},
		}
		h := api.NewServer(deps, api.WithMaxReportLimit(5)).Router(context.Background())

		Convey("When the report is requested with a limit", func() {
			w := do(h, http.MethodGet, "/report?limit=1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var rows []report.Row
			decode(w, &rows)
			So(len(rows), ShouldEqual, 1)
			So(rows[0].Name, ShouldEqual, "a")
		})

		Convey("When no limit is given", func() {
			w := do(h, http.MethodGet, "/report", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastLimit, ShouldEqual, 5)
		})

		Convey("When the limit is invalid or too large", func() {
			So(do(h, http.MethodGet, "/report?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/report?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/report?limit=6", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When thresholds are recomputed", func() {
			deps.summary = service.Summary{Computed: 1, Failed: 1, Errors: map[string]string{"b": "insufficient history"}}
			w := do(h, http.MethodPost, "/thresholds", "")

			So(w.Code, ShouldEqual, http.StatusOK)
			var sum service.Summary
			decode(w, &sum)
			So(sum.Errors["b"], ShouldEqual, "insufficient history")
		})

		Convey("When recomputation is interrupted", func() {
			deps.recompErr = context.Canceled
			w := do(h, http.MethodPost, "/thresholds", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestServer_HealthAndStats(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := api.NewServer(newMockDeps()).Router(context.Background())

		Convey("Then health serves the metrics exposition", func() {
			do(h, http.MethodGet, "/stats", "")
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "pitwall_")
		})

		Convey("Then stats are JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			var stats map[string]any
			decode(w, &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then stats can be narrowed by key", func() {
			w := do(h, http.MethodGet, "/stats?keys=competitors,%20missing", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			decode(w, &stats)
			So(len(stats), ShouldEqual, 1)
			So(stats, ShouldContainKey, "competitors")
		})

		Convey("Then CORS preflight is answered", func() {
			req := httptest.NewRequest(http.MethodOptions, "/report", nil)
			req.Header.Set("Origin", "https://example.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})
	})
}

func TestServer_ErrorKinds(t *testing.T) {
	Convey("Given a failing submit", t, func() {
		deps := newMockDeps()
		deps.submitErr = errors.New("disk on fire")
		h := api.NewServer(deps).Router(context.Background())

		w := do(h, http.MethodPost, "/observations", validObservation)
		So(w.Code, ShouldEqual, http.StatusInternalServerError)
		So(w.Body.String(), ShouldContainSubstring, "disk on fire")
	})
}
