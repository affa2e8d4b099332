package prompt

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cuongbtq/skitcast/internal/config"
)

// Source supplies the prompt for the next job.
type Source interface {
	Next(now time.Time) string
}

// RandomSource draws a fresh prompt on every call.
type RandomSource struct {
	catalog Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource creates a source seeded from the runtime generator
func NewRandomSource(catalog Catalog) *RandomSource {
	return &RandomSource{
		catalog: catalog,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Next implements Source. now is ignored.
func (s *RandomSource) Next(time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.compose(s.rng)
}

// BucketSource derives the prompt from the time bucket containing now, so every
// call within one bucket yields the same prompt.
type BucketSource struct {
	catalog Catalog
	bucket  time.Duration
	salt    uint64
}

// NewBucketSource creates a deterministic source. salt varies the sequence
// between deployments sharing a catalog.
func NewBucketSource(catalog Catalog, bucket time.Duration, salt uint64) (*BucketSource, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("prompt bucket must be greater than 0, got %s", bucket)
	}
	return &BucketSource{catalog: catalog, bucket: bucket, salt: salt}, nil
}

// Next implements Source.
func (s *BucketSource) Next(now time.Time) string {
	rng := rand.New(rand.NewPCG(uint64(s.Bucket(now)), s.salt))
	return s.catalog.compose(rng)
}

// Bucket returns the index of the bucket containing now
func (s *BucketSource) Bucket(now time.Time) int64 {
	n := now.UnixNano()
	b := s.bucket.Nanoseconds()
	idx := n / b
	if n < 0 && n%b != 0 {
		idx--
	}
	return idx
}

// FromConfig builds the configured source over the configured catalog.
func FromConfig(cfg config.PromptsConfig) (Source, error) {
	catalog := CatalogFromConfig(cfg)

	switch cfg.Selector {
	case config.SelectorRandom, "":
		return NewRandomSource(catalog), nil
	case config.SelectorBucket:
		src, err := NewBucketSource(catalog, cfg.Bucket, 0)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown prompt selector: %q", cfg.Selector)
	}
}
