package multisig

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/multisig-authz-go/types"
)

// AggregationOrder 本地聚合签名时的排序方式
type AggregationOrder int

const (
	// OrderBySigner 按签名者地址升序（Safe checkNSignatures 要求的顺序）
	// 任一确认缺少合法签名者地址时退回 OrderLexicographic
	OrderBySigner AggregationOrder = iota

	// OrderLexicographic 按签名十六进制字符串字典序
	OrderLexicographic
)

func (o AggregationOrder) String() string {
	switch o {
	case OrderBySigner:
		return "signer"
	case OrderLexicographic:
		return "lexicographic"
	}
	return fmt.Sprintf("AggregationOrder(%d)", int(o))
}

// ParseAggregationOrder 解析配置中的排序方式（空串为默认的 signer）
func ParseAggregationOrder(s string) (AggregationOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "signer":
		return OrderBySigner, nil
	case "lexicographic":
		return OrderLexicographic, nil
	}
	return 0, fmt.Errorf("unknown aggregation order %q", s)
}

type signedPart struct {
	signer    common.Address
	hasSigner bool
	hex       string // 去掉 0x 前缀、小写
}

// AggregateSignatures 将确认合并为一个签名
//
// 注册服务给出 preparedSignature 时直接使用；否则取所有非空签名，
// 去掉 2 字符前缀，按 order 排序后拼接，再加回一个 0x 前缀。
func AggregateSignatures(msg *types.ProposedMessage, order AggregationOrder) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("message is nil")
	}
	if prepared := strings.TrimSpace(msg.PreparedSignature); prepared != "" && prepared != "0x" {
		return prepared, nil
	}

	parts := make([]signedPart, 0, len(msg.Confirmations))
	allSigned := true
	for _, c := range msg.Confirmations {
		sig := strings.TrimSpace(c.Signature)
		if len(sig) <= 2 {
			continue
		}
		p := signedPart{hex: strings.ToLower(sig[2:])}
		p.signer, p.hasSigner = c.SignerAddress()
		if !p.hasSigner {
			allSigned = false
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no confirmation carries a signature")
	}

	if order == OrderBySigner && allSigned {
		sort.SliceStable(parts, func(i, j int) bool {
			return bytes.Compare(parts[i].signer.Bytes(), parts[j].signer.Bytes()) < 0
		})
	} else {
		sort.SliceStable(parts, func(i, j int) bool {
			return parts[i].hex < parts[j].hex
		})
	}

	var sb strings.Builder
	sb.WriteString("0x")
	for _, p := range parts {
		sb.WriteString(p.hex)
	}
	return sb.String(), nil
}
