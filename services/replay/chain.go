package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/weisyn/multisig-authz-go/client"
	"github.com/weisyn/multisig-authz-go/services/contract"
	"github.com/weisyn/multisig-authz-go/types"
	"github.com/weisyn/multisig-authz-go/utils"
	"github.com/weisyn/multisig-authz-go/wallet"
)

// ChainLedger 链上重放账本（合约实现）
type ChainLedger struct {
	contract     contract.Service
	address      common.Address
	pollInterval time.Duration
	logger       *zap.Logger
}

// ChainOption ChainLedger 选项
type ChainOption func(*ChainLedger)

// WithReceiptPollInterval 设置收据轮询间隔
func WithReceiptPollInterval(d time.Duration) ChainOption {
	return func(l *ChainLedger) {
		l.pollInterval = d
	}
}

// WithChainLogger 设置日志
func WithChainLogger(logger *zap.Logger) ChainOption {
	return func(l *ChainLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewChainLedger 创建链上重放账本
func NewChainLedger(ledger client.LedgerClient, address common.Address, opts ...ChainOption) (*ChainLedger, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("replay ledger address is required")
	}
	l := &ChainLedger{
		address:      address,
		pollInterval: utils.DefaultReceiptPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.contract = contract.NewService(ledger,
		contract.WithReceiptPollInterval(l.pollInterval),
		contract.WithLogger(l.logger),
	)
	return l, nil
}

// Address 合约地址
func (l *ChainLedger) Address() common.Address {
	return l.address
}

// GetConsumedAt 调用 getConsumedAt(address,bytes32)
func (l *ChainLedger) GetConsumedAt(ctx context.Context, consumer common.Address, hash common.Hash) (uint64, error) {
	values, err := l.contract.QueryContract(ctx, &contract.QueryContractRequest{
		ContractAddress: l.address,
		ABI:             ledgerABI,
		Method:          "getConsumedAt",
		Args:            []interface{}{consumer, hash},
	})
	if err != nil {
		return 0, types.ErrTransport(types.LayerReplay, err)
	}
	if len(values) != 1 {
		return 0, types.ErrTransport(types.LayerReplay, fmt.Errorf("unexpected getConsumedAt result length %d", len(values)))
	}
	ts, ok := values[0].(uint64)
	if !ok {
		return 0, types.ErrTransport(types.LayerReplay, fmt.Errorf("unexpected getConsumedAt result %T", values[0]))
	}
	return ts, nil
}

// Consume 发送 consume(bytes32[]) 交易并等待上链
//
// 发送前以 consumer 为 from 做 eth_call 预检，合约自定义错误映射为
// EMPTY_INPUT / ALREADY_CONSUMED，不发送交易。上链后解析收据中的 Consumed 事件。
// 广播之后的失败以 *TxError 返回，携带交易哈希。
func (l *ChainLedger) Consume(ctx context.Context, consumer wallet.Wallet, hashes []common.Hash) (*Receipt, error) {
	if consumer == nil {
		return nil, types.ErrInvalidRequest(types.LayerReplay, "consumer wallet is required")
	}
	if len(hashes) == 0 {
		return nil, types.ErrEmptyInput()
	}

	from := consumer.Address()
	res, err := l.contract.CallContract(ctx, &contract.CallContractRequest{
		ContractAddress: l.address,
		ABI:             ledgerABI,
		Method:          "consume",
		Args:            []interface{}{hashes},
	}, consumer)
	if err != nil {
		switch {
		case res == nil || res.TxHash == (common.Hash{}):
			return nil, l.mapRevert(err)
		case res.Receipt != nil:
			return nil, &TxError{TxHash: res.TxHash, Err: fmt.Errorf("consume reverted: %w", err)}
		default:
			l.logger.Warn("consume transaction not confirmed",
				zap.String("tx", res.TxHash.Hex()),
				zap.String("consumer", from.Hex()),
				zap.Error(err))
			return nil, &TxError{TxHash: res.TxHash, Pending: true, Err: err}
		}
	}
	l.logger.Info("hashes consumed",
		zap.String("tx", res.TxHash.Hex()),
		zap.String("consumer", from.Hex()),
		zap.Int("hashes", len(hashes)),
	)

	rcpt, err := l.receiptFrom(res.Receipt, from)
	if err != nil {
		return nil, &TxError{TxHash: res.TxHash, Err: err}
	}
	return rcpt, nil
}

// TxError consume 交易已广播之后的失败
//
// Pending 为 true 表示截止前没有拿到收据，交易仍可能上链。
type TxError struct {
	TxHash  common.Hash
	Pending bool
	Err     error
}

func (e *TxError) Error() string {
	if e.Pending {
		return fmt.Sprintf("consume transaction %s not confirmed: %v", e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("consume transaction %s: %v", e.TxHash.Hex(), e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

func (l *ChainLedger) receiptFrom(rcpt *client.Receipt, consumer common.Address) (*Receipt, error) {
	out := &Receipt{
		TxHash:      rcpt.TxHash,
		BlockNumber: rcpt.BlockNumber,
		Consumer:    consumer,
	}
	for _, lg := range utils.FindLogs(rcpt.Logs, l.address, ConsumedEventID) {
		ev, err := DecodeConsumedLog(lg)
		if err != nil {
			return nil, types.ErrTransport(types.LayerReplay, err)
		}
		out.Events = append(out.Events, *ev)
		out.Timestamp = ev.Timestamp
	}
	if len(out.Events) == 0 {
		return nil, types.ErrTransport(types.LayerReplay,
			fmt.Errorf("transaction %s emitted no Consumed events", rcpt.TxHash.Hex()))
	}
	return out, nil
}

// mapRevert 把合约自定义错误映射为拒绝原因，其余错误归为传输错误
func (l *ChainLedger) mapRevert(err error) error {
	custom, ok := contract.DecodeRevert(ledgerABI, err)
	if !ok {
		if client.IsTransportFailure(err) {
			return types.ErrTransport(types.LayerReplay, err)
		}
		return fmt.Errorf("consume rejected: %w", err)
	}
	switch custom.Name {
	case "EmptyInput":
		return types.ErrEmptyInput()
	case "AlreadyConsumed":
		consumer, _ := custom.Args["consumer"].(common.Address)
		hash, _ := custom.Args["hash"].([32]byte)
		at, _ := custom.Args["consumedAt"].(uint64)
		return types.ErrAlreadyConsumed(consumer.Hex(), common.Hash(hash).Hex(), at)
	}
	return errors.New(custom.Error())
}
