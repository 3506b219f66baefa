package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weisyn/multisig-authz-go/services/authz"
	"github.com/weisyn/multisig-authz-go/services/replay"
	"github.com/weisyn/multisig-authz-go/types"
)

var simulateFlags requestFlags

// simulateCmd 预演授权
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "以直连网络预演授权",
	Long: `执行 simulate 阶段的全部检查:重放账本、注册服务、多签门限与签名、字段校验。

只读,不消费授权。被拒绝时输出拒绝原因并以非零状态退出。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := simulateFlags.build()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}

		ctx := cmd.Context()

		lc, err := getLedgerClient()
		if err != nil {
			return err
		}
		defer lc.Close()

		ledger, closer, err := replay.Open(ctx, cfg, lc, logger)
		if err != nil {
			return err
		}
		defer closer.Close()

		direct, err := getDirectNetwork()
		if err != nil {
			return err
		}

		svc, err := authz.NewService(cfg, direct, nil, ledger, authz.WithLogger(logger))
		if err != nil {
			return err
		}

		decision := svc.Simulate(ctx, req)
		if err := printDecision(decision); err != nil {
			return err
		}
		if deny, ok := types.DecisionDeny(decision); ok {
			return fmt.Errorf("授权被拒绝: %s", deny.Reason)
		}
		return nil
	},
}

// printDecision 输出决策
func printDecision(d types.Decision) error {
	if allow, ok := types.AsAllow(d); ok {
		out := map[string]interface{}{
			"allowed":       true,
			"contentHash":   allow.ContentHash,
			"messageDigest": allow.MessageDigest,
			"wallet":        allow.Wallet,
			"confirmations": allow.Confirmations,
			"threshold":     allow.Threshold,
		}
		if allow.ChainID != nil {
			out["chainId"] = allow.ChainID.String()
		}
		return printResult(out)
	}

	deny, _ := types.DecisionDeny(d)
	return printResult(map[string]interface{}{
		"allowed":     false,
		"reason":      deny.Reason,
		"layer":       deny.Layer,
		"userMessage": deny.UserMessage,
		"detail":      deny.Detail,
		"details":     deny.Details,
		"traceId":     deny.TraceID,
		"timestamp":   deny.Timestamp,
	})
}

func init() {
	simulateFlags.register(simulateCmd)
}
