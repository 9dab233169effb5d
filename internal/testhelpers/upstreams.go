// Package testhelpers provides in-process fakes of the upstream APIs for
// tests that wire the full service stack.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// CurrentReport is a minimal HKO rhrread payload.
const CurrentReport = `{
  "temperature": {"data": [{"place": "King's Park", "value": 24}]},
  "icon": [50],
  "warningMessage": "",
  "rainfall": {"data": [{"place": "Central & Western District", "max": 0}]}
}`

// Upstream is a fake upstream server that counts the requests it served.
type Upstream struct {
	*httptest.Server
	calls atomic.Int64
}

// Calls returns how many requests the fake has served.
func (u *Upstream) Calls() int64 {
	return u.calls.Load()
}

func newUpstream(t *testing.T, h http.HandlerFunc) *Upstream {
	t.Helper()
	u := &Upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

// NewHKOServer serves current with dataType=rhrread and forecast with
// dataType=fnd. Other data types get 400.
func NewHKOServer(t *testing.T, current, forecast string) *Upstream {
	return newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("dataType") {
		case "rhrread":
			writeRaw(w, current)
		case "fnd":
			writeRaw(w, forecast)
		default:
			http.Error(w, "unknown dataType", http.StatusBadRequest)
		}
	})
}

// Station is one place the fake Google server returns from nearby search.
type Station struct {
	Name     string
	Lat, Lng float64
}

// NewGoogleServer answers nearby search with stations for every place type
// and the distance matrix with meters for every origin/destination pair.
func NewGoogleServer(t *testing.T, stations []Station, meters float64) *Upstream {
	return newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/place/nearbysearch/json"):
			results := make([]map[string]any, 0, len(stations))
			for _, s := range stations {
				results = append(results, map[string]any{
					"name": s.Name,
					"geometry": map[string]any{
						"location": map[string]float64{"lat": s.Lat, "lng": s.Lng},
					},
				})
			}
			status := "OK"
			if len(results) == 0 {
				status = "ZERO_RESULTS"
			}
			writeValue(w, map[string]any{"status": status, "results": results})
		case strings.HasSuffix(r.URL.Path, "/distancematrix/json"):
			writeValue(w, map[string]any{
				"status": "OK",
				"rows": []map[string]any{{
					"elements": []map[string]any{{
						"status":   "OK",
						"distance": map[string]float64{"value": meters},
					}},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	})
}

// NewGeminiServer answers every generateContent call with text.
func NewGeminiServer(t *testing.T, text string) *Upstream {
	return newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		writeValue(w, map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]string{{"text": text}},
				},
			}},
		})
	})
}

func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func writeValue(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
