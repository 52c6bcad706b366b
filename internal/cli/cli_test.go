package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"docqa/internal/config"
)

// fakeOllama answers every /api/generate call with a fixed response and
// records the prompts it saw.
type fakeOllama struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(map[string]string{"response": "The sky is blue because of Rayleigh scattering."})
}

func (f *fakeOllama) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

var _ = Describe("CLI", func() {
	var (
		dir     string
		cfgPath string
		ollama  *fakeOllama
		docs    string
	)

	run := func(args ...string) (string, error) {
		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		ollama = &fakeOllama{}
		srv := httptest.NewServer(ollama)
		DeferCleanup(srv.Close)

		cfgPath = filepath.Join(dir, "config.yaml")
		yaml := fmt.Sprintf(`embedder:
  type: hashing
generator:
  type: ollama
  ollama:
    base_url: %s
vector_store:
  type: chromem
  path: %s
`, srv.URL, filepath.Join(dir, "index"))
		Expect(os.WriteFile(cfgPath, []byte(yaml), 0o644)).To(Succeed())

		docs = filepath.Join(dir, "docs")
		Expect(os.MkdirAll(docs, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(docs, "sky.txt"),
			[]byte("The sky is blue because of Rayleigh scattering of sunlight."), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(docs, "grass.txt"),
			[]byte("Grass is green because chlorophyll absorbs red and blue light."), 0o644)).To(Succeed())
	})

	Describe("ingest", func() {
		It("indexes a folder and reports the build", func() {
			out, err := run("ingest", docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Indexed"))
			Expect(out).To(ContainSubstring("documents: 2"))
			Expect(out).To(ContainSubstring("chunks:    2"))
		})

		It("requires at least one path", func() {
			_, err := run("ingest")
			Expect(err).To(HaveOccurred())
		})

		It("fails when no supported documents are found", func() {
			empty := filepath.Join(dir, "empty")
			Expect(os.MkdirAll(empty, 0o755)).To(Succeed())
			_, err := run("ingest", empty)
			Expect(err).To(MatchError(ContainSubstring("no supported documents")))
		})
	})

	Describe("ask", func() {
		It("answers from an index built by an earlier run", func() {
			_, err := run("ingest", docs)
			Expect(err).NotTo(HaveOccurred())

			out, err := run("ask", "Why is the sky blue?")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Rayleigh scattering"))
			Expect(out).To(ContainSubstring("Sources"))
			Expect(out).To(ContainSubstring("sky.txt"))

			prompts := ollama.seen()
			Expect(prompts).To(HaveLen(1))
			Expect(prompts[0]).To(ContainSubstring("Document: sky.txt"))
			Expect(prompts[0]).To(ContainSubstring("Why is the sky blue?"))
		})

		It("ingests --file documents first", func() {
			out, err := run("ask", "Why is grass green?", "--quiet", "--file", filepath.Join(docs, "grass.txt"))
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(out)).To(Equal("The sky is blue because of Rayleigh scattering."))
		})

		It("explains that nothing has been ingested yet", func() {
			_, err := run("ask", "Why is the sky blue?")
			Expect(err).To(MatchError(ContainSubstring("docqa ingest")))
			Expect(ollama.seen()).To(BeEmpty())
		})

		It("takes exactly one question", func() {
			_, err := run("ask")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("build", func() {
		var cfg *config.AppConfig

		BeforeEach(func() {
			var err error
			cfg, err = config.Load(filepath.Join(dir, "missing.yaml"))
			Expect(err).NotTo(HaveOccurred())
			cfg.VectorStore.Type = "memory"
		})

		It("assembles an ingest-only service without generator credentials", func() {
			cfg.Generator.Gemini.APIKeyEnv = "DOCQA_TEST_UNSET_KEY"
			a, err := build(context.Background(), cfg, false, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(a.Close)

			report, err := a.service.IngestPaths(context.Background(), []string{docs})
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Documents).To(Equal(2))
		})

		It("fails when the generator has no API key", func() {
			cfg.Generator.Gemini.APIKeyEnv = "DOCQA_TEST_UNSET_KEY"
			_, err := build(context.Background(), cfg, true, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("generator")))
		})

		It("rejects unknown component types", func() {
			cfg.Embedder.Type = "word2vec"
			_, err := build(context.Background(), cfg, false, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("unknown embedder: word2vec")))

			cfg.Embedder.Type = "hashing"
			cfg.VectorStore.Type = "faiss"
			_, err = build(context.Background(), cfg, false, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("unknown vector store: faiss")))

			cfg.VectorStore.Type = "memory"
			cfg.Summarizer.Type = "llm"
			_, err = build(context.Background(), cfg, false, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("unknown summarizer: llm")))
		})

		It("requires qdrant settings for the qdrant backend", func() {
			cfg.VectorStore.Type = "qdrant"
			cfg.VectorStore.Qdrant = nil
			_, err := build(context.Background(), cfg, false, zap.NewNop())
			Expect(err).To(MatchError(ContainSubstring("qdrant config missing")))
		})
	})
})
