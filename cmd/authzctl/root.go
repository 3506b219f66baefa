package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/services"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile   string // YAML 配置文件（为空时读取 AUTHZ_* 环境变量）
	OutputFormat string // 输出格式
	Verbose      bool   // 详细日志
}

var (
	globalFlags GlobalFlags
	cfg         *services.Config
	logger      *zap.Logger
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "authzctl",
	Short: "多签授权网关命令行工具",
	Long: `authzctl - 多签授权网关的运维工具

用于排查与演练门控动作的授权流程:
- 计算授权记录的规范化字符串、EIP-191 摘要与 Safe 消息哈希
- 以直连网络预演 simulate 阶段
- 查询与消费重放账本
- 查询多签钱包门限与所有者

配置来源: --config 指定的 YAML 文件,否则读取 AUTHZ_* 环境变量。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if globalFlags.ConfigFile != "" {
			cfg, err = services.LoadConfigFile(globalFlags.ConfigFile)
		} else {
			cfg, err = services.LoadConfigFromEnv()
		}
		if err != nil {
			return fmt.Errorf("加载配置: %w", err)
		}

		if globalFlags.Verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("初始化日志: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute 执行根命令
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "YAML 配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.OutputFormat, "output", "o", "json", "输出格式: json|yaml")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "详细输出")

	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(walletCmd)
}

// clientConfig 由业务配置生成账本节点的客户端配置
func clientConfig() *client.Config {
	cc := client.DefaultConfig()
	if cfg.RPCEndpoint != "" {
		cc.Endpoint = cfg.RPCEndpoint
	}
	if isWebSocket(cc.Endpoint) {
		cc.Protocol = client.ProtocolWebSocket
	}
	cc.Logger = client.NewZapLogger(logger)
	cc.Debug = globalFlags.Verbose
	return cc
}

// getLedgerClient 获取账本节点客户端
func getLedgerClient() (client.LedgerClient, error) {
	lc, err := client.NewLedgerClient(clientConfig())
	if err != nil {
		return nil, fmt.Errorf("连接账本节点: %w", err)
	}
	return lc, nil
}

// getDirectNetwork 获取直连网络
func getDirectNetwork() (client.Network, error) {
	n, err := client.NewDirectNetwork(clientConfig())
	if err != nil {
		return nil, fmt.Errorf("创建直连网络: %w", err)
	}
	return n, nil
}

func isWebSocket(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://")
}
