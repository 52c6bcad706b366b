package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"docqa/internal/domain"
	"docqa/internal/embedding/openai"
)

var _ = Describe("Client", func() {
	const keyEnv = "DOCQA_TEST_OPENAI_KEY"

	BeforeEach(func() {
		Expect(os.Setenv(keyEnv, "sk-test")).To(Succeed())
		DeferCleanup(os.Unsetenv, keyEnv)
	})

	newClient := func(url string) *openai.Client {
		c, err := openai.NewClient(openai.Config{BaseURL: url, APIKeyEnv: keyEnv, Model: "test-embed"})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("requires an API key", func() {
		_, err := openai.NewClient(openai.Config{APIKeyEnv: "DOCQA_TEST_MISSING_KEY"})
		Expect(err).To(MatchError(ContainSubstring("DOCQA_TEST_MISSING_KEY")))
	})

	It("embeds a batch in one request and orders results by index", func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			Expect(r.URL.Path).To(Equal("/embeddings"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
			var body struct {
				Input []string `json:"input"`
				Model string   `json:"model"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body.Input).To(Equal([]string{"first", "second"}))
			Expect(body.Model).To(Equal("test-embed"))
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`))
		}))
		defer srv.Close()

		c := newClient(srv.URL)
		vs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(Equal([][]float32{{1, 0, 0}, {0, 1, 0}}))
		Expect(calls.Load()).To(Equal(int32(1)))
		Expect(c.Dimension()).To(Equal(3))
		Expect(c.Name()).To(Equal("openai:test-embed"))
	})

	It("accepts the single-embedding response shape", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[0.5,0.5]}`))
		}))
		defer srv.Close()

		v, err := newClient(srv.URL).Embed(context.Background(), "q")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]float32{0.5, 0.5}))
	})

	It("retries throttled requests", func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
		}))
		defer srv.Close()

		_, err := newClient(srv.URL).Embed(context.Background(), "q")
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Load()).To(Equal(int32(2)))
	})

	It("does not retry client errors", func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "bad model", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := newClient(srv.URL).Embed(context.Background(), "q")
		Expect(err).To(MatchError(domain.ErrEmbeddingService))
		Expect(err.Error()).To(ContainSubstring("bad model"))
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("stops retrying when the context ends", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newClient(srv.URL).Embed(ctx, "q")
		Expect(err).To(MatchError(context.Canceled))
	})
})
