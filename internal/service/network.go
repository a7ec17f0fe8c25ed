package service

import (
	"context"
	"encoding/hex"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/daemon"
	"paygate/internal/node"
)

type decodeRPC interface {
	DecodeRawTransaction(ctx context.Context, rawHex string) (*node.RawTransaction, error)
}

type outputSink interface {
	OnOutput(ctx context.Context, txid string, vout uint32, amount decimal.Decimal, address string) error
}

type sweeper interface {
	Trigger()
}

type eventFeed interface {
	Run(ctx context.Context, handle func(ctx context.Context, ev node.Event)) error
}

// Network 网络守护进程的事件主循环: 订阅事件分发到对应路径。
// rawtx 转给后台任务处理 (解码要打 RPC，不能阻塞订阅读循环)，
// hashblock 只触发确认扫描。
type Network struct {
	feed      eventFeed
	rpc       decodeRPC
	processor outputSink
	sweep     sweeper
	tasks     daemon.Spawner
	log       *zap.Logger
}

func NewNetwork(feed eventFeed, rpc decodeRPC, processor outputSink,
	sweep sweeper, tasks daemon.Spawner, log *zap.Logger) *Network {
	return &Network{
		feed:      feed,
		rpc:       rpc,
		processor: processor,
		sweep:     sweep,
		tasks:     tasks,
		log:       log,
	}
}

// Run 阻塞消费订阅事件直到取消
func (n *Network) Run(ctx context.Context) error {
	return n.feed.Run(ctx, n.handleEvent)
}

func (n *Network) handleEvent(_ context.Context, ev node.Event) {
	switch ev.Topic {
	case node.TopicRawTx:
		raw := hex.EncodeToString(ev.Payload)
		n.tasks.Spawn("rawtx-worker", func(ctx context.Context) error {
			return n.processRawTx(ctx, raw)
		})
	case node.TopicHashBlock:
		n.sweep.Trigger()
	default:
		n.log.Debug("未知订阅主题", zap.String("topic", ev.Topic))
	}
}

// processRawTx 解码一笔交易并逐输出交给处理器
func (n *Network) processRawTx(ctx context.Context, rawHex string) error {
	tx, err := n.rpc.DecodeRawTransaction(ctx, rawHex)
	if err != nil {
		return err
	}
	for _, out := range tx.Vout {
		if out.ScriptPubKey.Address == "" {
			// OP_RETURN 或裸脚本输出，不可能是我们的地址
			continue
		}
		if err := n.processor.OnOutput(ctx, tx.Txid, out.N, out.Value, out.ScriptPubKey.Address); err != nil {
			return err
		}
	}
	return nil
}
