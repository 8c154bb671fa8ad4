// Package tone serializes calls to the tone classifier behind a content-addressed cache
package tone

import (
	"context"
	"sync"
	"time"

	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/segment"
	"github.com/spikely/platform/internal/trace"
)

// Classifier is the external tone-classification collaborator.
type Classifier interface {
	AnalyzeText(ctx context.Context, text string) (model.ToneResult, error)
}

// Callback receives the classification for a request.
type Callback func(model.ToneResult)

// Config for the tone cache
type Config struct {
	MinScore    float64
	CallDelay   time.Duration
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.CallDelay < 0 {
		c.CallDelay = 0
	} else if c.CallDelay == 0 {
		c.CallDelay = DefaultCallDelay
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

type item struct {
	text     string
	at       time.Time
	callback Callback
}

// Cache answers repeated texts from memory and drains misses one classifier call at a time.
// Entries live for the lifetime of the cache.
type Cache struct {
	classifier Classifier
	cfg        Config

	mu       sync.Mutex
	results  map[string]model.ToneResult
	queue    []item
	draining bool

	calls  int
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCache creates a tone cache. A negative CallDelay disables the inter-call pause (tests).
func NewCache(classifier Classifier, cfg Config) *Cache {
	return &Cache{
		classifier: classifier,
		cfg:        cfg.withDefaults(),
		results:    make(map[string]model.ToneResult),
		stopCh:     make(chan struct{}),
	}
}

// Request delivers the classification of text to callback. A cached result is delivered
// before Request returns; otherwise the text is queued for the drain loop.
func (c *Cache) Request(text string, at time.Time, callback Callback) {
	key := segment.HashText(text)

	c.mu.Lock()
	if res, ok := c.results[key]; ok {
		c.mu.Unlock()
		callback(res)
		return
	}
	c.queue = append(c.queue, item{text: text, at: at, callback: callback})
	if !c.draining {
		c.draining = true
		c.wg.Add(1)
		go c.drain()
	}
	c.mu.Unlock()
}

func (c *Cache) drain() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		next := c.queue[0]
		c.queue = c.queue[1:]
		key := segment.HashText(next.text)
		res, ok := c.results[key]
		c.mu.Unlock()

		if ok {
			next.callback(res)
			continue
		}

		res = c.classify(next.text)

		c.mu.Lock()
		c.results[key] = res
		c.mu.Unlock()
		next.callback(res)

		select {
		case <-c.stopCh:
			c.mu.Lock()
			c.queue = nil
			c.draining = false
			c.mu.Unlock()
			return
		case <-time.After(c.cfg.CallDelay):
		}
	}
}

func (c *Cache) classify(text string) model.ToneResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()
	ctx, span := trace.StartSpan(ctx, "tone_classify")
	defer span.End()
	span.SetAttr("chars", len(text))

	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	log := trace.Logger(ctx)
	res, err := c.classifier.AnalyzeText(ctx, text)
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Warn("tone classification failed", "error", err)
		return model.ToneResult{Emotion: EmotionNeutral}
	}
	if res.Emotion == "" {
		res.Emotion = EmotionNeutral
	}
	if res.Score < c.cfg.MinScore {
		res.Emotion = EmotionInconclusive
		res.Score = 0
	}
	log.Debug("tone classified", "emotion", res.Emotion, "score", res.Score)
	return res
}

// Calls returns how many times the classifier has been invoked.
func (c *Cache) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Len returns the number of cached texts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Reset drops cached results and pending requests.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.results = make(map[string]model.ToneResult)
	c.queue = nil
	c.mu.Unlock()
}

// Stop abandons queued requests and waits for an in-flight call to finish.
func (c *Cache) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
}
