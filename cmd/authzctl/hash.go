package main

import (
	"github.com/spf13/cobra"

	"github.com/weisyn/multisig-authz-go/services/message"
)

var hashFlags requestFlags

// hashCmd 计算授权哈希
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "计算授权记录的哈希",
	Long: `构建授权记录的类型化消息并输出:
- canonical: 规范化字符串(共同签名者签名的内容)
- messageDigest: EIP-191 摘要(isValidSignature 的 bytes32 参数)
- contentHash: Safe 消息哈希(注册服务中的 messageHash)

纯本地计算,不访问网络。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := hashFlags.build()
		if err != nil {
			return err
		}

		domain := message.NewDomain(cfg.DomainName, cfg.DomainVersion, req.ChainID, req.Wallet)
		env, err := message.Build(req.Record(), domain)
		if err != nil {
			return err
		}
		canonical, hashes, err := message.HashEnvelope(env)
		if err != nil {
			return err
		}

		return printResult(map[string]interface{}{
			"canonical":        canonical,
			"messageDigest":    hashes.MessageDigest.Hex(),
			"contentHash":      hashes.ContentHash(),
			"parametersDigest": req.ParametersDigest,
		})
	},
}

func init() {
	hashFlags.register(hashCmd)
}
