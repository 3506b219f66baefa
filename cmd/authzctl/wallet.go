package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/multisig-authz-go/services/multisig"
	"github.com/weisyn/multisig-authz-go/utils"
)

var walletConcurrency int

// walletCmd 多签钱包查询
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "查询多签钱包",
	Long:  "查询多签钱包的门限与所有者",
}

// walletInfo 单个钱包的查询结果
type walletInfo struct {
	Wallet    string   `json:"wallet" yaml:"wallet"`
	Threshold int      `json:"threshold" yaml:"threshold"`
	Owners    []string `json:"owners" yaml:"owners"`
}

// walletInfoCmd 查询门限与所有者
var walletInfoCmd = &cobra.Command{
	Use:   "info <address>...",
	Short: "查询钱包门限与所有者",
	Long:  "并发查询一个或多个多签钱包的门限与所有者",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wallets := make([]common.Address, 0, len(args))
		for _, arg := range args {
			addr, err := utils.ParseAddress(arg)
			if err != nil {
				return err
			}
			wallets = append(wallets, addr)
		}

		network, err := getDirectNetwork()
		if err != nil {
			return err
		}
		// 门限与所有者只走合约调用，不需要注册服务
		svc := multisig.NewService(network, nil, multisig.WithLogger(logger))

		infos, err := utils.ParallelExecute(cmd.Context(), wallets, func(ctx context.Context, addr common.Address) (walletInfo, error) {
			return queryWallet(ctx, svc, addr)
		}, walletConcurrency)
		if err != nil {
			return err
		}
		if len(infos) == 1 {
			return printResult(infos[0])
		}
		return printResult(infos)
	},
}

func queryWallet(ctx context.Context, svc multisig.Service, addr common.Address) (walletInfo, error) {
	threshold, err := svc.Threshold(ctx, addr)
	if err != nil {
		return walletInfo{}, fmt.Errorf("查询 %s 门限: %w", addr.Hex(), err)
	}
	owners, err := svc.Owners(ctx, addr)
	if err != nil {
		return walletInfo{}, fmt.Errorf("查询 %s 所有者: %w", addr.Hex(), err)
	}

	hexOwners := make([]string, 0, len(owners))
	for _, o := range owners {
		hexOwners = append(hexOwners, o.Hex())
	}
	return walletInfo{Wallet: addr.Hex(), Threshold: threshold, Owners: hexOwners}, nil
}

func init() {
	walletInfoCmd.Flags().IntVar(&walletConcurrency, "concurrency", 4, "并发查询数")
	walletCmd.AddCommand(walletInfoCmd)
}
