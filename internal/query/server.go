/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Galactica-corp/purchase-oracle-service/internal/oracle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/storage"
)

const (
	DefaultAddr = "localhost:8480"

	// maxBodySize is the maximum request body size in bytes the server accepts. 1MiB
	maxBodySize = 1024 * 1024

	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type (
	WebhookHandler interface {
		HandleWebhook(ctx context.Context, productID common.Hash, webhook oracle.PurchaseWebhook) (common.Hash, error)
	}

	ProofProvider interface {
		GetPurchaseProof(ctx context.Context, selector oracle.ProofSelector) (*oracle.PurchaseProof, error)
	}

	RootHistory interface {
		RootHistory(ctx context.Context, productID common.Hash, limit int) ([]storage.RootRecord, error)
	}

	// Server is the HTTP surface of the purchase oracle: merchant webhooks, proofs and root history.
	Server struct {
		webhooks WebhookHandler
		proofs   ProofProvider
		roots    RootHistory
		gatherer prometheus.Gatherer
		logger   log.Logger
		engine   *gin.Engine
	}
)

// NewServer creates the server and registers its routes. The metrics endpoint is served only
// when the gatherer is set.
func NewServer(
	webhooks WebhookHandler,
	proofs ProofProvider,
	roots RootHistory,
	gatherer prometheus.Gatherer,
	logger log.Logger,
) *Server {
	s := &Server{
		webhooks: webhooks,
		proofs:   proofs,
		roots:    roots,
		gatherer: gatherer,
		logger:   logger,
		engine:   gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), corsHeaders(), ErrorHandlingMiddleware(logger))
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.Health)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.engine.POST("/webhooks/:productId/:platform", s.HandleWebhook)

	s.engine.GET("/products/:productId/purchases/:purchaseId/proof", s.ProofByPurchaseID)
	s.engine.GET("/products/:productId/external/:externalId/proof", s.ProofByExternalID)
	s.engine.GET("/products/:productId/roots", s.RootHistory)
	s.engine.GET("/purchases/proof", s.ProofByToken)
}

// Handler returns the http handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on the address until the context is done.
func (s *Server) Run(ctx context.Context, address string) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return fmt.Errorf("invalid address: %v", err)
	}

	server := &http.Server{
		Addr:         address,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Handler:      http.MaxBytesHandler(s.engine, maxBodySize),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	s.logger.Info("http server started", "address", address)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxTimeout); err != nil {
		return fmt.Errorf("http server shutdown failed: %v", err)
	}

	return nil
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug(
			"http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// corsHeaders allows browser clients to query proofs from any origin.
func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Client-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
