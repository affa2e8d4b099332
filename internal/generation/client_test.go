package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/skitcast/internal/config"
	"github.com/cuongbtq/skitcast/internal/generation/domain"
)

type fakeProvider struct {
	server      *httptest.Server
	statusCalls atomic.Int32
	genericHits atomic.Int32
	lastJobID   atomic.Value
}

func newFakeProvider(t *testing.T, submit http.HandlerFunc, status func(call int, w http.ResponseWriter), generic http.HandlerFunc) *fakeProvider {
	t.Helper()

	p := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", submit)
	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.lastJobID.Store(r.PathValue("id"))
		call := int(p.statusCalls.Add(1))
		if status == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		status(call, w)
	})
	mux.HandleFunc("GET /generic", func(w http.ResponseWriter, r *http.Request) {
		p.genericHits.Add(1)
		if generic == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		generic(w, r)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) client(t *testing.T, withFallback bool) *Client {
	t.Helper()

	opts := Options{
		APIKey:       "test-key",
		GenerateURL:  p.server.URL + "/generate",
		StatusURL:    p.server.URL + "/status/{id}",
		BodyEncoding: config.EncodingJSON,
		Params:       Params{Model: "sora-2", Duration: "10"},
		HTTPClient:   p.server.Client(),
	}
	if withFallback {
		opts.StatusFallbackURL = p.server.URL + "/generic"
	}

	c, err := NewClient(opts)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func respondWith(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v)
	}
}

func TestSubmit_DirectURLSkipsPolling(t *testing.T) {
	p := newFakeProvider(t, respondWith(map[string]any{"video_url": "http://x/a.mp4"}), nil, nil)
	c := p.client(t, true)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/a.mp4", url)
	assert.Equal(t, int32(0), p.statusCalls.Load())
	assert.Equal(t, int32(0), p.genericHits.Load())
}

func TestSubmit_DirectURLPriority(t *testing.T) {
	p := newFakeProvider(t, respondWith(map[string]any{
		"download_url": "http://x/download.mp4",
		"url":          "http://x/url.mp4",
		"job_id":       "J9",
	}), nil, nil)
	c := p.client(t, false)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/url.mp4", url)
	assert.Equal(t, int32(0), p.statusCalls.Load())
}

func TestSubmit_PollsUntilComplete(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J1"}),
		func(call int, w http.ResponseWriter) {
			if call < 3 {
				writeJSON(w, map[string]any{"status": 1})
				return
			}
			writeJSON(w, map[string]any{"status": 2, "url": "http://x/b.mp4"})
		},
		nil,
	)
	c := p.client(t, false)

	url, err := c.Submit(context.Background(), "a prompt", 5*time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/b.mp4", url)
	assert.Equal(t, int32(3), p.statusCalls.Load())
	assert.Equal(t, "J1", p.lastJobID.Load())
}

func TestSubmit_NumericIdentifier(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"id": 42}),
		func(call int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{"status": "2", "video_url": "http://x/n.mp4"})
		},
		nil,
	)
	c := p.client(t, false)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/n.mp4", url)
	assert.Equal(t, "42", p.lastJobID.Load())
}

func TestSubmit_FailedStatusAbortsImmediately(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"uuid": "J3"}),
		func(call int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{"status": 3, "error_message": "content policy violation"})
		},
		nil,
	)
	c := p.client(t, true)

	timeout := 5 * time.Second
	start := time.Now()
	url, err := c.Submit(context.Background(), "a prompt", timeout, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Empty(t, url)
	assert.True(t, errors.Is(err, domain.ErrJobFailed))
	assert.Contains(t, err.Error(), "content policy violation")
	assert.Equal(t, "J3", domain.JobIDOf(err))
	assert.Less(t, elapsed, timeout/5)
	assert.Equal(t, int32(1), p.statusCalls.Load())
	// the generic probe is not consulted once the primary endpoint reports failure
	assert.Equal(t, int32(0), p.genericHits.Load())
}

func TestSubmit_Timeout(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J2"}),
		func(call int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{"status": 1})
		},
		nil,
	)
	c := p.client(t, false)

	timeout := 200 * time.Millisecond
	interval := 50 * time.Millisecond
	start := time.Now()
	url, err := c.Submit(context.Background(), "a prompt", timeout, interval)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Empty(t, url)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Contains(t, err.Error(), "J2")
	assert.Equal(t, "J2", domain.JobIDOf(err))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.LessOrEqual(t, elapsed, timeout+interval+50*time.Millisecond)
	assert.GreaterOrEqual(t, p.statusCalls.Load(), int32(1))
}

func TestSubmit_TransientStatusErrorsAreSwallowed(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J4"}),
		func(call int, w http.ResponseWriter) {
			switch call {
			case 1:
				w.WriteHeader(http.StatusBadGateway)
			case 2:
				_, _ = w.Write([]byte("<html>maintenance</html>"))
			default:
				writeJSON(w, map[string]any{"status": 2, "download_url": "http://x/d.mp4"})
			}
		},
		nil,
	)
	c := p.client(t, false)

	url, err := c.Submit(context.Background(), "a prompt", 5*time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/d.mp4", url)
	assert.Equal(t, int32(3), p.statusCalls.Load())
}

func TestSubmit_MediaList(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J5"}),
		func(call int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{
				"status": 2,
				"media": []any{
					map[string]any{"name": "thumbnail"},
					map[string]any{"download_url": "http://x/media.mp4"},
					map[string]any{"url": "http://x/second.mp4"},
				},
			})
		},
		nil,
	)
	c := p.client(t, false)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/media.mp4", url)
}

func TestSubmit_CompletedWithoutURLKeepsPolling(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J6"}),
		func(call int, w http.ResponseWriter) {
			if call == 1 {
				writeJSON(w, map[string]any{"status": 2})
				return
			}
			writeJSON(w, map[string]any{"status": 2, "video_url": "http://x/late.mp4"})
		},
		nil,
	)
	c := p.client(t, false)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/late.mp4", url)
	assert.Equal(t, int32(2), p.statusCalls.Load())
}

func TestSubmit_GenericStatusProbe(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J7"}),
		func(call int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{"status": 1})
		},
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("job_id") != "J7" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			writeJSON(w, map[string]any{"status_desc": "Completed", "video_url": "http://x/generic.mp4"})
		},
	)
	c := p.client(t, true)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/generic.mp4", url)
	assert.Equal(t, int32(1), p.statusCalls.Load())
	assert.Equal(t, int32(1), p.genericHits.Load())
}

func TestSubmit_GenericProbeIgnoresFailure(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J8"}),
		func(call int, w http.ResponseWriter) {
			if call < 2 {
				writeJSON(w, map[string]any{"status": 1})
				return
			}
			writeJSON(w, map[string]any{"status": 2, "url": "http://x/primary.mp4"})
		},
		respondWith(map[string]any{"status": 3, "error_message": "ignored"}),
	)
	c := p.client(t, true)

	url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "http://x/primary.mp4", url)
}

func TestSubmit_ProtocolError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no url or id", body: `{"message":"accepted"}`},
		{name: "empty url and id", body: `{"video_url":"  ","job_id":""}`},
		{name: "not json", body: `accepted`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, nil, nil)
			c := p.client(t, true)

			url, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

			require.Error(t, err)
			assert.Empty(t, url)
			assert.True(t, errors.Is(err, domain.ErrProtocol))
			assert.Equal(t, int32(0), p.statusCalls.Load())
		})
	}
}

func TestSubmit_SubmissionError(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
		}, nil, nil)
		c := p.client(t, false)

		_, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSubmission))
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("transport error", func(t *testing.T) {
		p := newFakeProvider(t, respondWith(map[string]any{}), nil, nil)
		c := p.client(t, false)
		p.server.Close()

		_, err := c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)

		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSubmission))
	})
}

func TestSubmit_ContextCanceled(t *testing.T) {
	p := newFakeProvider(t,
		respondWith(map[string]any{"job_id": "J10"}),
		func(call int, w http.ResponseWriter) {
			writeJSON(w, map[string]any{"status": 1})
		},
		nil,
	)
	c := p.client(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Submit(ctx, "a prompt", 10*time.Second, 20*time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, domain.ErrTimeout))
}

func TestSubmit_InvalidDurations(t *testing.T) {
	p := newFakeProvider(t, respondWith(map[string]any{}), nil, nil)
	c := p.client(t, false)

	_, err := c.Submit(context.Background(), "a prompt", 0, time.Second)
	require.Error(t, err)
}

func TestSubmit_MultipartRequest(t *testing.T) {
	var (
		mu        sync.Mutex
		gotFields map[string]string
		gotKey    string
	)
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotKey = r.Header.Get("x-api-key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		writeJSON(w, map[string]any{"video_url": "http://x/m.mp4"})
	}, nil, nil)

	c, err := NewClient(Options{
		APIKey:      "secret",
		GenerateURL: p.server.URL + "/generate",
		StatusURL:   p.server.URL + "/status/{id}",
		Params: Params{
			Model:       "sora-2",
			Resolution:  "small",
			Duration:    "10",
			AspectRatio: "landscape",
		},
		HTTPClient: p.server.Client(),
	})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), "two friends argue", time.Second, 10*time.Millisecond)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, map[string]string{
		"prompt":       "two friends argue",
		"model":        "sora-2",
		"resolution":   "small",
		"duration":     "10",
		"aspect_ratio": "landscape",
	}, gotFields)
}

func TestSubmit_JSONRequest(t *testing.T) {
	var (
		mu          sync.Mutex
		got         map[string]string
		contentType string
	)
	p := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, map[string]any{"video_url": "http://x/j.mp4"})
	}, nil, nil)

	c, err := NewClient(Options{
		APIKey:       "secret",
		APIKeyHeader: "Authorization",
		GenerateURL:  p.server.URL + "/generate",
		StatusURL:    p.server.URL + "/status/{id}",
		BodyEncoding: config.EncodingJSON,
		Params:       Params{Duration: "10", Type: "video", Language: "ar"},
		HTTPClient:   p.server.Client(),
	})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), "a prompt", time.Second, 10*time.Millisecond)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, map[string]string{
		"prompt":   "a prompt",
		"duration": "10",
		"type":     "video",
		"language": "ar",
	}, got)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{StatusURL: "http://x/{id}"})
	require.Error(t, err)

	_, err = NewClient(Options{GenerateURL: "http://x/gen", StatusURL: "http://x/status"})
	require.Error(t, err)

	c, err := NewClient(Options{GenerateURL: "http://x/gen", StatusURL: "http://x/status/{id}"})
	require.NoError(t, err)
	assert.Equal(t, "x-api-key", c.apiKeyHeader)
	assert.Equal(t, config.EncodingMultipart, c.bodyEncoding)
	assert.Equal(t, 60*time.Second, c.submitTimeout)
	assert.Equal(t, 30*time.Second, c.statusTimeout)
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.APIKey = "k"

	c, err := NewClientFromConfig(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "k", c.apiKey)
	assert.Equal(t, "sora-2", c.params.Model)
	assert.Equal(t, cfg.Provider.StatusFallbackURL, c.statusFallbackURL)
}
