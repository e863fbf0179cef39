package mw

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache keeps successful GET responses in process memory.
// Entries are keyed by the caller's team and the request URI, so teams never share a response.
// Any successful mutation flushes the whole cache. It only sees mutations made
// through the same process, so it must not front a multi-instance deployment.
type ResponseCache struct {
	store      *cache.Cache
	duration   time.Duration
	teamHeader string

	mu  sync.Mutex
	gen uint64
}

func NewResponseCache(store *cache.Cache, duration time.Duration, teamHeader string) *ResponseCache {
	return &ResponseCache{store: store, duration: duration, teamHeader: teamHeader}
}

// Invalidate flushes the cache after every successful non-GET request.
// It has to run on every route that can change data, cached or not.
func (rc *ResponseCache) Invalidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		c.Next()
		if status := c.Writer.Status(); status >= 200 && status < 300 {
			rc.flush()
		}
	}
}

func (rc *ResponseCache) flush() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.gen++
	rc.store.Flush()
}

// put stores a response read at generation gen, unless a flush happened since.
func (rc *ResponseCache) put(key string, gen uint64, resp cachedResponse) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.gen == gen {
		rc.store.Set(key, resp, rc.duration)
	}
}

func (rc *ResponseCache) generation() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.gen
}

// Cached serves GET requests from the cache and fills it on a miss.
func (rc *ResponseCache) Cached() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.GetHeader(rc.teamHeader) + " " + c.Request.RequestURI
		if resp, found := rc.store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		gen := rc.generation()
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 {
			rc.put(key, gen, cachedResponse{
				status:  blw.Status(),
				headers: blw.Header().Clone(),
				body:    blw.body.Bytes(),
			})
		}
	}
}

// Passthrough stands in for Cached when caching is off.
func Passthrough(c *gin.Context) {
	c.Next()
}
