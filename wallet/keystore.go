package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 默认迭代次数
const DefaultKDFIterations = 262144

const (
	kdfKeyLen  = 32
	cipherName = "aes-128-ctr"
	kdfName    = "pbkdf2"
	prfName    = "hmac-sha256"
)

// Keystore Keystore 文件结构（Web3 Secret Storage v3 的 pbkdf2 变体）
type Keystore struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	Address string `json:"address"`
	Crypto  Crypto `json:"crypto"`
}

// Crypto 加密信息
type Crypto struct {
	Cipher       string       `json:"cipher"`
	CipherText   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

// CipherParams 加密参数
type CipherParams struct {
	IV string `json:"iv"`
}

// KDFParams PBKDF2 参数
type KDFParams struct {
	C     int    `json:"c"`
	DKLen int    `json:"dklen"`
	PRF   string `json:"prf"`
	Salt  string `json:"salt"`
}

// KeystoreManager Keystore 管理器
type KeystoreManager struct {
	keystoreDir string
	iterations  int
}

// NewKeystoreManager 创建 Keystore 管理器
func NewKeystoreManager(keystoreDir string) (*KeystoreManager, error) {
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}

	return &KeystoreManager{
		keystoreDir: keystoreDir,
		iterations:  DefaultKDFIterations,
	}, nil
}

// WithIterations 设置 PBKDF2 迭代次数（测试中使用较小值）
func (km *KeystoreManager) WithIterations(iterations int) *KeystoreManager {
	if iterations > 0 {
		km.iterations = iterations
	}
	return km
}

// Save 保存钱包私钥到 Keystore，返回文件路径
func (km *KeystoreManager) Save(w Wallet, password string) (string, error) {
	salt := make([]byte, 32)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	key := deriveKey(password, salt, km.iterations, kdfKeyLen)

	ciphertext, err := xorAESCTR(key[:16], ethcrypto.FromECDSA(w.PrivateKey()), iv)
	if err != nil {
		return "", fmt.Errorf("encrypt private key: %w", err)
	}

	address := strings.ToLower(w.Address().Hex()[2:])
	keystore := &Keystore{
		Version: 3,
		ID:      uuid.New().String(),
		Address: address,
		Crypto: Crypto{
			Cipher:     cipherName,
			CipherText: hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{
				IV: hex.EncodeToString(iv),
			},
			KDF: kdfName,
			KDFParams: KDFParams{
				C:     km.iterations,
				DKLen: kdfKeyLen,
				PRF:   prfName,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(computeMAC(key, ciphertext)),
		},
	}

	keystorePath := km.path(w.Address())
	data, err := json.MarshalIndent(keystore, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode keystore: %w", err)
	}
	if err := os.WriteFile(keystorePath, data, 0600); err != nil {
		return "", fmt.Errorf("write keystore file: %w", err)
	}

	return keystorePath, nil
}

// Load 从 Keystore 加载钱包
func (km *KeystoreManager) Load(address common.Address, password string) (Wallet, error) {
	data, err := os.ReadFile(km.path(address))
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	return DecryptKeystore(data, password)
}

// DecryptKeystore 解密 Keystore JSON
func DecryptKeystore(data []byte, password string) (Wallet, error) {
	var keystore Keystore
	if err := json.Unmarshal(data, &keystore); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}

	c := keystore.Crypto
	if c.Cipher != cipherName {
		return nil, fmt.Errorf("unsupported cipher %q", c.Cipher)
	}
	if c.KDF != kdfName || c.KDFParams.PRF != prfName {
		return nil, fmt.Errorf("unsupported kdf %q/%q", c.KDF, c.KDFParams.PRF)
	}
	if c.KDFParams.C <= 0 || c.KDFParams.DKLen < kdfKeyLen {
		return nil, fmt.Errorf("invalid kdf params")
	}

	salt, err := hex.DecodeString(c.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := hex.DecodeString(c.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(c.CipherText)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	actualMAC, err := hex.DecodeString(c.MAC)
	if err != nil {
		return nil, fmt.Errorf("decode mac: %w", err)
	}

	key := deriveKey(password, salt, c.KDFParams.C, c.KDFParams.DKLen)
	if subtle.ConstantTimeCompare(computeMAC(key, ciphertext), actualMAC) != 1 {
		return nil, fmt.Errorf("invalid password")
	}

	plain, err := xorAESCTR(key[:16], ciphertext, iv)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key: %w", err)
	}
	privateKey, err := ethcrypto.ToECDSA(plain)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	w, err := NewWalletFromKey(privateKey)
	if err != nil {
		return nil, err
	}
	if keystore.Address != "" && !strings.EqualFold(keystore.Address, w.Address().Hex()[2:]) {
		return nil, fmt.Errorf("keystore address %s does not match key", keystore.Address)
	}
	return w, nil
}

func (km *KeystoreManager) path(address common.Address) string {
	return filepath.Join(km.keystoreDir, strings.ToLower(address.Hex())+".json")
}

// deriveKey 派生密钥（PBKDF2-HMAC-SHA256）
func deriveKey(password string, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
}

// xorAESCTR AES-CTR 加解密（对称）
func xorAESCTR(key, input, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv must be %d bytes", block.BlockSize())
	}

	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(input))
	stream.XORKeyStream(out, input)
	return out, nil
}

// computeMAC keccak256(derivedKey[16:32] || ciphertext)
func computeMAC(key, ciphertext []byte) []byte {
	return ethcrypto.Keccak256(key[16:32], ciphertext)
}
