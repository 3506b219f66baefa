package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/services"
	"github.com/weisyn/multisig-authz-go/services/event"
	"github.com/weisyn/multisig-authz-go/services/replay"
	"github.com/weisyn/multisig-authz-go/utils"
	"github.com/weisyn/multisig-authz-go/wallet"
)

var (
	ledgerConsumer    string
	ledgerHashes      []string
	ledgerKeystoreDir string
	ledgerAccount     string
	ledgerPasswordEnv string
	eventsFromBlock   int64
	eventsToBlock     int64
	eventsLimit       int
	eventsOffset      int
	eventsFollow      bool
)

// ledgerCmd 重放账本相关命令
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "重放账本操作",
	Long:  "查询授权的消费状态、手动消费授权哈希、查询消费事件",
}

// ledgerConsumedAtCmd 查询消费时间
var ledgerConsumedAtCmd = &cobra.Command{
	Use:   "consumed-at",
	Short: "查询授权哈希的消费时间",
	Long:  "按 consumer 批量查询授权哈希的消费时间,0 表示尚未消费。用于 finalize 失败后的对账。",
	RunE: func(cmd *cobra.Command, args []string) error {
		consumer, err := utils.ParseAddress(ledgerConsumer)
		if err != nil {
			return fmt.Errorf("--consumer: %w", err)
		}
		hashes, err := parseHashes(ledgerHashes)
		if err != nil {
			return err
		}

		ledger, closer, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer closer.Close()

		entries, err := replay.ConsumedAtBatch(cmd.Context(), ledger, consumer, hashes)
		if err != nil {
			return err
		}

		out := make([]map[string]interface{}, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]interface{}{
				"consumer":   e.Consumer.Hex(),
				"hash":       e.Hash.Hex(),
				"consumedAt": e.ConsumedAt,
				"consumed":   e.Consumed(),
			})
		}
		return printResult(out)
	},
}

// ledgerConsumeCmd 手动消费
var ledgerConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "以 keystore 账户消费授权哈希",
	Long: `以 keystore 中的账户作为 consumer 原子地消费一批授权哈希。

动作已执行而 finalize 失败时,运维人员用它补记消费。
keystore 密码从 --password-env 指定的环境变量读取。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hashes, err := parseHashes(ledgerHashes)
		if err != nil {
			return err
		}
		w, err := loadKeystoreWallet()
		if err != nil {
			return err
		}

		ledger, closer, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer closer.Close()

		rcpt, err := ledger.Consume(cmd.Context(), w, hashes)
		if err != nil {
			return err
		}
		logger.Info("hashes consumed",
			zap.String("consumer", rcpt.Consumer.Hex()),
			zap.Int("count", len(rcpt.Events)),
			zap.String("tx", rcpt.TxHash.Hex()))

		return printResult(map[string]interface{}{
			"txHash":      rcpt.TxHash.Hex(),
			"blockNumber": rcpt.BlockNumber,
			"consumer":    rcpt.Consumer.Hex(),
			"timestamp":   rcpt.Timestamp,
			"events":      eventsOutput(rcpt.Events),
		})
	},
}

// ledgerEventsCmd 查询消费事件
var ledgerEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "查询消费事件",
	Long:  "查询 Consumed 事件,可按 consumer 与哈希过滤;--follow 持续订阅新事件(需要 ws 端点)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var consumer *common.Address
		if ledgerConsumer != "" {
			addr, err := utils.ParseAddress(ledgerConsumer)
			if err != nil {
				return fmt.Errorf("--consumer: %w", err)
			}
			consumer = &addr
		}
		var hashes []common.Hash
		if len(ledgerHashes) > 0 {
			var err error
			if hashes, err = parseHashes(ledgerHashes); err != nil {
				return err
			}
		}

		if cfg.LedgerBackend == services.LedgerBackendRedis {
			if consumer == nil {
				return fmt.Errorf("redis 账本按 consumer 存储事件,需要 --consumer")
			}
			l, rdb, err := replay.OpenRedisLedger(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()
			events, err := l.ConsumedEvents(ctx, *consumer)
			if err != nil {
				return err
			}
			return printResult(eventsOutput(events))
		}

		lc, err := getLedgerClient()
		if err != nil {
			return err
		}
		defer lc.Close()

		svc := event.NewService(lc, cfg.ReplayLedgerAddress, logger)
		filters := &event.EventFilters{
			Consumer:  consumer,
			Hashes:    hashes,
			FromBlock: big.NewInt(eventsFromBlock),
			Limit:     eventsLimit,
			Offset:    eventsOffset,
		}
		if eventsToBlock >= 0 {
			filters.ToBlock = big.NewInt(eventsToBlock)
		}

		if !eventsFollow {
			events, err := svc.GetEvents(ctx, filters)
			if err != nil {
				return err
			}
			out := make([]replay.ConsumedEvent, 0, len(events))
			for _, ev := range events {
				out = append(out, *ev)
			}
			return printResult(eventsOutput(out))
		}

		ch, err := svc.SubscribeEvents(ctx, filters)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "订阅中,按 Ctrl+C 退出")
		for ev := range ch {
			if err := printResult(eventsOutput([]replay.ConsumedEvent{*ev})[0]); err != nil {
				return err
			}
		}
		return nil
	},
}

// openLedger 按配置打开重放账本
func openLedger(ctx context.Context) (replay.Ledger, io.Closer, error) {
	switch cfg.LedgerBackend {
	case services.LedgerBackendChain, "":
		c, err := getLedgerClient()
		if err != nil {
			return nil, nil, err
		}
		ledger, closer, err := replay.Open(ctx, cfg, c, logger)
		if err != nil {
			c.Close()
			return nil, nil, err
		}
		return ledger, multiCloser{closer, c}, nil
	}
	return replay.Open(ctx, cfg, nil, logger)
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// loadKeystoreWallet 从 keystore 加载 consumer 账户
func loadKeystoreWallet() (wallet.Wallet, error) {
	account, err := utils.ParseAddress(ledgerAccount)
	if err != nil {
		return nil, fmt.Errorf("--account: %w", err)
	}
	password := os.Getenv(ledgerPasswordEnv)
	if password == "" {
		return nil, fmt.Errorf("环境变量 %s 未设置 keystore 密码", ledgerPasswordEnv)
	}
	km, err := wallet.NewKeystoreManager(ledgerKeystoreDir)
	if err != nil {
		return nil, err
	}
	return km.Load(account, password)
}

func parseHashes(raw []string) ([]common.Hash, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("至少需要一个 --hash")
	}
	hashes := make([]common.Hash, 0, len(raw))
	for _, s := range raw {
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("--hash: invalid 32-byte hash %q", s)
		}
		hashes = append(hashes, common.BytesToHash(b))
	}
	return hashes, nil
}

func eventsOutput(events []replay.ConsumedEvent) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		m := map[string]interface{}{
			"consumer":  ev.Consumer.Hex(),
			"hash":      ev.Hash.Hex(),
			"timestamp": ev.Timestamp,
		}
		if ev.TxHash != (common.Hash{}) {
			m["txHash"] = ev.TxHash.Hex()
			m["blockNumber"] = ev.BlockNumber
			m["logIndex"] = ev.LogIndex
		}
		out = append(out, m)
	}
	return out
}

func init() {
	ledgerConsumedAtCmd.Flags().StringVar(&ledgerConsumer, "consumer", "", "consumer 地址")
	ledgerConsumedAtCmd.Flags().StringSliceVar(&ledgerHashes, "hash", nil, "授权哈希 (可重复)")
	_ = ledgerConsumedAtCmd.MarkFlagRequired("consumer")

	ledgerConsumeCmd.Flags().StringSliceVar(&ledgerHashes, "hash", nil, "授权哈希 (可重复)")
	ledgerConsumeCmd.Flags().StringVar(&ledgerKeystoreDir, "keystore-dir", "./keystore", "keystore 目录")
	ledgerConsumeCmd.Flags().StringVar(&ledgerAccount, "account", "", "consumer 账户地址")
	ledgerConsumeCmd.Flags().StringVar(&ledgerPasswordEnv, "password-env", "AUTHZ_KEYSTORE_PASSWORD", "保存 keystore 密码的环境变量")
	_ = ledgerConsumeCmd.MarkFlagRequired("account")

	ledgerEventsCmd.Flags().StringVar(&ledgerConsumer, "consumer", "", "按 consumer 过滤")
	ledgerEventsCmd.Flags().StringSliceVar(&ledgerHashes, "hash", nil, "按授权哈希过滤 (可重复)")
	ledgerEventsCmd.Flags().Int64Var(&eventsFromBlock, "from-block", 0, "起始区块")
	ledgerEventsCmd.Flags().Int64Var(&eventsToBlock, "to-block", -1, "结束区块 (-1 表示 latest)")
	ledgerEventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "最多返回条数")
	ledgerEventsCmd.Flags().IntVar(&eventsOffset, "offset", 0, "跳过条数")
	ledgerEventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "持续订阅新事件")

	ledgerCmd.AddCommand(ledgerConsumedAtCmd)
	ledgerCmd.AddCommand(ledgerConsumeCmd)
	ledgerCmd.AddCommand(ledgerEventsCmd)
}
