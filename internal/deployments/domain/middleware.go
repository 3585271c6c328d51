package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/deploycheck/pkg/client"
)

// LoggingMiddleware returns a StatusReader middleware that logs every status read.
func LoggingMiddleware(logger *slog.Logger) func(StatusReader) StatusReader {
	return func(next StatusReader) StatusReader {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   StatusReader
	logger *slog.Logger
}

func (m *loggingMiddleware) TransactionStatus(ctx context.Context, hash common.Hash) (*client.TxStatus, error) {
	start := time.Now()
	status, err := m.next.TransactionStatus(ctx, hash)
	state := ""
	if status != nil {
		state = string(status.State)
	}
	m.logger.Debug("TransactionStatus",
		"tx", hash.Hex(),
		"state", state,
		"duration", time.Since(start),
		"error", err,
	)
	return status, err
}
