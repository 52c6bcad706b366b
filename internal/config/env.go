package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCQA_EMBEDDER_TYPE.
const EnvPrefix = "DOCQA"

// applyEnv overlays DOCQA_* environment variables onto cfg.
// Nested sections that an override touches are created on demand.
func applyEnv(cfg *AppConfig) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) error {
		if !v.IsSet(key) {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), err)
		}
		*dst = n
		return nil
	}

	str("extractor.policy", &cfg.Extractor.Policy)
	str("embedder.type", &cfg.Embedder.Type)
	str("generator.type", &cfg.Generator.Type)
	str("vector_store.type", &cfg.VectorStore.Type)
	str("vector_store.path", &cfg.VectorStore.Path)
	str("server.listen", &cfg.Server.Listen)
	str("server.uploads_dir", &cfg.Server.UploadsDir)

	for key, dst := range map[string]*int{
		"extractor.workers":      &cfg.Extractor.Workers,
		"chunker.size":           &cfg.Chunker.Size,
		"chunker.overlap":        &cfg.Chunker.Overlap,
		"embedder.timeout_secs":  &cfg.Embedder.TimeoutSecs,
		"embedder.batch_size":    &cfg.Embedder.BatchSize,
		"generator.timeout_secs": &cfg.Generator.TimeoutSecs,
		"retriever.top_k":        &cfg.Retriever.TopK,
		"assembler.max_tokens":   &cfg.Assembler.MaxTokens,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v.IsSet("retriever.min_score") {
		cfg.Retriever.MinScore = v.GetFloat64("retriever.min_score")
	}

	if v.IsSet("vector_store.qdrant.url") || v.IsSet("vector_store.qdrant.api_key") {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		str("vector_store.qdrant.url", &cfg.VectorStore.Qdrant.URL)
		str("vector_store.qdrant.api_key", &cfg.VectorStore.Qdrant.APIKey)
	}
	return nil
}
