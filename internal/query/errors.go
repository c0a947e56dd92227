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
	"errors"
	"fmt"
	"net/http"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/Galactica-corp/purchase-oracle-service/internal/oracle"
	"github.com/Galactica-corp/purchase-oracle-service/internal/types"
	"github.com/Galactica-corp/purchase-oracle-service/internal/utils"
)

var ErrInvalidRequest = errors.New("invalid request")

type (
	errorPayload struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}

	errorResponse struct {
		Error errorPayload `json:"error"`
	}
)

// ErrorHandlingMiddleware writes the last handler error as a JSON error response.
func ErrorHandlingMiddleware(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", lastErr.Err)
		}

		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, oracle.ErrOracleNotFound), errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, oracle.ErrInvalidPurchase),
		errors.Is(err, oracle.ErrPlatformMismatch),
		errors.Is(err, types.ErrInvalidStatus):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func parseUint256(name, value string) (common.Hash, error) {
	hash, err := utils.ParseUint256Hash(value)
	if err != nil {
		return common.Hash{}, invalidRequest("%s %v: %q", name, err, value)
	}

	return hash, nil
}
