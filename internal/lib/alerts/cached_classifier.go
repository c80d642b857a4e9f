package alerts

import (
	"context"
	"log"
	"time"
)

// classificationTTL bounds how long a classification is reused for identical text
const classificationTTL = 24 * time.Hour

// ClassificationCache is the subset of the shared cache used for classifications
type ClassificationCache interface {
	Set(key string, data interface{}, ttl time.Duration, source string) error
	Get(key string, result interface{}) (bool, error)
}

// CachedClassifier wraps a Classifier with content-based caching and a
// keyword fallback when the wrapped classifier fails
type CachedClassifier struct {
	classifier Classifier
	cache      ClassificationCache
	hasher     *ContentHasher
	fallback   Classifier
}

// NewCachedClassifier creates a classifier with content-based caching
func NewCachedClassifier(classifier Classifier, cache ClassificationCache) *CachedClassifier {
	return &CachedClassifier{
		classifier: classifier,
		cache:      cache,
		hasher:     NewContentHasher(),
		fallback:   KeywordClassifier{},
	}
}

// Classify checks the cache, then the wrapped classifier, then keywords.
// Keyword results are not cached so a recovered upstream can improve them.
func (c *CachedClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	contentHash := c.hasher.HashText(text)
	key := "classification:" + contentHash

	var cached Classification
	if found, err := c.cache.Get(key, &cached); err == nil && found {
		return cached, nil
	}

	result, err := c.classifier.Classify(ctx, text)
	if err != nil {
		log.Printf("Classification failed for %s, using keywords: %v", contentHash[:8], err)
		return c.fallback.Classify(ctx, text)
	}

	if err := c.cache.Set(key, result, classificationTTL, "classification"); err != nil {
		log.Printf("Failed to cache classification: %v", err)
	}

	return result, nil
}
