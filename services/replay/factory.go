package replay

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/services"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open 按配置创建重放账本
//
// chain 后端需要 ledger 客户端；redis 后端会建立连接，
// 返回的 io.Closer 负责释放它。
func Open(ctx context.Context, cfg *services.Config, ledger client.LedgerClient, logger *zap.Logger) (Ledger, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	switch cfg.LedgerBackend {
	case services.LedgerBackendChain, "":
		l, err := NewChainLedger(ledger, cfg.ReplayLedgerAddress,
			WithReceiptPollInterval(cfg.ReceiptPollInterval),
			WithChainLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return l, nopCloser{}, nil
	case services.LedgerBackendRedis:
		l, rdb, err := OpenRedisLedger(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return l, rdb, nil
	case services.LedgerBackendMemory:
		return NewMemoryLedger(nil), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}
