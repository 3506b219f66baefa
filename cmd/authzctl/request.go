package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/multisig-authz-go/services/authz"
	"github.com/weisyn/multisig-authz-go/utils"
)

// requestFlags 授权请求相关标志（hash、simulate、consume 共用）
type requestFlags struct {
	Wallet           string
	ChainID          string
	RequesterID      string
	RequesterVersion string
	ActionID         string
	Parameters       string
	ParametersDigest string
	Principal        string
	Nonce            string
	Expiry           string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.Wallet, "wallet", "", "多签钱包地址")
	fs.StringVar(&f.ChainID, "chain-id", "", "钱包所在链 (默认取配置)")
	fs.StringVar(&f.RequesterID, "requester-id", "", "请求方 ID")
	fs.StringVar(&f.RequesterVersion, "requester-version", "", "请求方版本")
	fs.StringVar(&f.ActionID, "action", "", "动作 ID")
	fs.StringVar(&f.Parameters, "params", "", "动作参数 JSON (计算参数摘要)")
	fs.StringVar(&f.ParametersDigest, "params-digest", "", "已计算好的参数摘要 (与 --params 互斥)")
	fs.StringVar(&f.Principal, "principal", "", "执行动作的主体地址")
	fs.StringVar(&f.Nonce, "nonce", "", "动作 nonce")
	fs.StringVar(&f.Expiry, "expiry", "", "过期时间 (unix 秒)")
	_ = cmd.MarkFlagRequired("wallet")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("principal")
}

// build 解析标志为授权请求
func (f *requestFlags) build() (authz.Request, error) {
	var req authz.Request

	wallet, err := utils.ParseAddress(f.Wallet)
	if err != nil {
		return req, fmt.Errorf("--wallet: %w", err)
	}
	req.Wallet = wallet

	switch {
	case f.ChainID != "":
		if req.ChainID, err = parseBig("--chain-id", f.ChainID); err != nil {
			return req, err
		}
	case cfg.ChainID != nil:
		req.ChainID = cfg.ChainID
	default:
		return req, fmt.Errorf("--chain-id 未指定且配置中没有链 ID")
	}

	if req.RequesterID, err = parseBig("--requester-id", f.RequesterID); err != nil {
		return req, err
	}
	if req.RequesterVersion, err = parseBig("--requester-version", f.RequesterVersion); err != nil {
		return req, err
	}
	if req.Nonce, err = parseBig("--nonce", f.Nonce); err != nil {
		return req, err
	}
	if req.Expiry, err = parseBig("--expiry", f.Expiry); err != nil {
		return req, err
	}

	switch {
	case f.Parameters != "" && f.ParametersDigest != "":
		return req, fmt.Errorf("--params 与 --params-digest 不能同时指定")
	case f.Parameters != "":
		dec := json.NewDecoder(strings.NewReader(f.Parameters))
		dec.UseNumber()
		var params interface{}
		if err := dec.Decode(&params); err != nil {
			return req, fmt.Errorf("--params: %w", err)
		}
		if req.ParametersDigest, err = utils.ParametersDigest(params); err != nil {
			return req, fmt.Errorf("--params: %w", err)
		}
	default:
		req.ParametersDigest = f.ParametersDigest
	}

	req.ActionID = f.ActionID
	if !common.IsHexAddress(f.Principal) {
		return req, fmt.Errorf("--principal: invalid address %q", f.Principal)
	}
	req.PrincipalAddress = f.Principal
	return req, nil
}

func parseBig(flag, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s 是必填项", flag)
	}
	n, err := utils.ParseInteger(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", flag, err)
	}
	return n, nil
}
