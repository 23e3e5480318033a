// Package httptransport is deje's default transport.Transport: a
// gin-gonic HTTP router exposing a single peer bus endpoint,
// standing in for the EJTP jack the original implementation used.
// Grounded directly on the teacher's cmd/server/main.go (gin setup,
// graceful shutdown) and internal/api/handlers.go (handler/middleware
// split).
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPTransport sends peer messages as POST /deje/message and serves
// /health, matching the teacher's own health-check convention.
type HTTPTransport struct {
	self   string // our own listen/dial address, e.g. "localhost:9001"
	client *http.Client
}

// New creates an HTTPTransport that listens on, and identifies itself
// as, self.
func New(self string) *HTTPTransport {
	return &HTTPTransport{
		self:   self,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send POSTs msg to address, tagging the sender via X-Deje-From so the
// receiving Owner can route replies without an independent identity
// lookup per request.
func (t *HTTPTransport) Send(ctx context.Context, address string, msg []byte) error {
	url := fmt.Sprintf("http://%s/deje/message", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(msg))
	if err != nil {
		return fmt.Errorf("build request to %s: %w", address, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Deje-From", t.self)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to %s: %w", address, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send to %s: status %d", address, resp.StatusCode)
	}
	return nil
}

// Listen runs the HTTP server until ctx is cancelled, invoking
// onMessage for every POST /deje/message body received.
func (t *HTTPTransport) Listen(ctx context.Context, onMessage func(from string, raw []byte)) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(Logger(), Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "self": t.self})
	})
	router.POST("/deje/message", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		onMessage(c.GetHeader("X-Deje-From"), body)
		c.Status(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:         t.self,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("deje: http transport listening on %s", t.self)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
