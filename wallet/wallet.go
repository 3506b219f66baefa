package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet 钱包接口
//
// Finalize 阶段以委托人（consumer）自己的身份签名 consume 交易，
// 共同签名者用同一接口对授权哈希签名。
type Wallet interface {
	// Address 获取钱包地址
	Address() common.Address

	// SignTx 签名交易（EIP-155 / EIP-1559 签名器由链 ID 决定）
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)

	// SignMessage 签名消息（EIP-191 personal_sign，v 为 27/28）
	SignMessage(msg []byte) ([]byte, error)

	// SignHash 签名给定哈希（v 为 0/1，供高级调用方使用）
	SignHash(hash []byte) ([]byte, error)

	// PrivateKey 获取私钥（谨慎使用）
	PrivateKey() *ecdsa.PrivateKey
}

// SimpleWallet 简单钱包实现（用于测试和开发）
type SimpleWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	createdAt  time.Time
}

// NewWallet 创建新钱包
func NewWallet() (Wallet, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return newSimpleWallet(privateKey), nil
}

// NewWalletFromPrivateKey 从十六进制私钥创建钱包
func NewWalletFromPrivateKey(privateKeyHex string) (Wallet, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"), "0X")

	// secp256k1 私钥为 32 字节
	if len(privateKeyHex) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 32 bytes, got %d hex chars", len(privateKeyHex))
	}

	privateKey, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newSimpleWallet(privateKey), nil
}

// NewWalletFromKey 从已解析的私钥创建钱包
func NewWalletFromKey(privateKey *ecdsa.PrivateKey) (Wallet, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	return newSimpleWallet(privateKey), nil
}

func newSimpleWallet(privateKey *ecdsa.PrivateKey) *SimpleWallet {
	return &SimpleWallet{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
		createdAt:  time.Now(),
	}
}

// Address 获取钱包地址
func (w *SimpleWallet) Address() common.Address {
	return w.address
}

// SignTx 签名交易
func (w *SimpleWallet) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// SignHash 签名 32 字节哈希，返回 r || s || v（v 为 0/1）
func (w *SimpleWallet) SignHash(hash []byte) ([]byte, error) {
	if len(hash) != common.HashLength {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(hash))
	}
	sig, err := ethcrypto.Sign(hash, w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	return sig, nil
}

// SignMessage 按 EIP-191 签名消息
func (w *SimpleWallet) SignMessage(msg []byte) ([]byte, error) {
	sig, err := w.SignHash(accounts.TextHash(msg))
	if err != nil {
		return nil, err
	}
	sig[recoveryIDIndex] += 27
	return sig, nil
}

// PrivateKey 获取私钥
func (w *SimpleWallet) PrivateKey() *ecdsa.PrivateKey {
	return w.privateKey
}

// recoveryIDIndex 签名中 v 的下标
const recoveryIDIndex = ethcrypto.RecoveryIDOffset

// SignSafeMessage 共同签名者对 Safe 消息哈希签名
//
// 输出 65 字节 ECDSA 签名（v 为 27/28），即 Safe checkSignatures 的 EOA 签名格式，
// 可直接作为注册服务中的一条确认。
func SignSafeMessage(w Wallet, safeMessageHash common.Hash) (string, error) {
	sig, err := w.SignHash(safeMessageHash.Bytes())
	if err != nil {
		return "", err
	}
	sig[recoveryIDIndex] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}

// RecoverSigner 从 Safe EOA 签名恢复签名者地址
func RecoverSigner(safeMessageHash common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", ethcrypto.SignatureLength, len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[recoveryIDIndex] >= 27 {
		sig[recoveryIDIndex] -= 27
	}
	pub, err := ethcrypto.SigToPub(safeMessageHash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
