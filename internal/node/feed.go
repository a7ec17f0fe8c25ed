package node

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// 订阅主题
const (
	TopicRawTx     = "rawtx"     // 新交易进入 mempool，payload 为原始交易字节
	TopicHashBlock = "hashblock" // 新区块上链，payload 为区块哈希
)

const (
	feedDialTimeout = 15 * time.Second
	feedIdleTimeout = 30 * time.Second
	feedRedialDelay = time.Second
	feedReadLimit   = 1 << 22 // 大交易也要能整帧读进来
)

// Event 订阅推送的一条事件
type Event struct {
	Topic   string
	Payload []byte
}

// wireEvent 线上帧格式，payload 以 hex 编码
type wireEvent struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

type subscribeRequest struct {
	Subscribe []string `json:"subscribe"`
}

// Feed 维持到节点事件端点的 websocket 订阅。
// 订阅是尽力而为的: 任何读错误或空闲超时都静默重连，掉线期间错过的
// 交易由确认扫描兜底，不在这里追补。
type Feed struct {
	url         string
	idleTimeout time.Duration
	log         *zap.Logger
}

func NewFeed(url string, log *zap.Logger) *Feed {
	return &Feed{
		url:         url,
		idleTimeout: feedIdleTimeout,
		log:         log,
	}
}

// Run 阻塞消费事件直到 ctx 取消，每条事件同步交给 handle。
// handle 自己决定是内联处理还是转给后台任务。
func (f *Feed) Run(ctx context.Context, handle func(ctx context.Context, ev Event)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := f.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn("订阅连接失败，稍后重连", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(feedRedialDelay):
			}
			continue
		}

		f.log.Info("订阅已建立", zap.String("url", f.url))
		err = f.consume(ctx, conn, handle)
		conn.Close(websocket.StatusNormalClosure, "")
		if err != nil {
			return err
		}
		// 空闲超时或连接级错误，回到重连循环
	}
}

func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, feedDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(feedReadLimit)

	sub := subscribeRequest{Subscribe: []string{TopicRawTx, TopicHashBlock}}
	if err := wsjson.Write(dialCtx, conn, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, err
	}
	return conn, nil
}

// consume 读事件直到出错。返回 nil 表示该重连，返回非 nil 表示该退出。
func (f *Feed) consume(ctx context.Context, conn *websocket.Conn, handle func(ctx context.Context, ev Event)) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, f.idleTimeout)
		var frame wireEvent
		err := wsjson.Read(readCtx, conn, &frame)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// 静默的连接视为死连接，zmq 不会主动告诉你它断了
				f.log.Warn("订阅空闲超时，重建连接",
					zap.Duration("idle", f.idleTimeout))
				return nil
			}
			f.log.Warn("订阅读取失败，重建连接", zap.Error(err))
			return nil
		}

		payload, err := hex.DecodeString(frame.Payload)
		if err != nil {
			f.log.Warn("事件 payload 不是合法 hex，丢弃",
				zap.String("topic", frame.Topic), zap.Error(err))
			continue
		}
		handle(ctx, Event{Topic: frame.Topic, Payload: payload})
	}
}
