package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/pkg/retry"
)

const (
	rpcTimeout     = 15 * time.Second
	rpcConcurrency = 10 // 同时在途的 RPC 调用上限，避免打爆节点
)

// RPCError 节点返回的 JSON-RPC 错误对象
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("节点 RPC 错误 %d: %s", e.Code, e.Message)
}

// Client 比特币节点的 JSON-RPC-over-HTTP 客户端。
// 并发由固定大小的信号量封顶，每次调用失败后固定间隔重试，
// 耗尽后把最后一次的错误交给调用方 (经由 Supervisor 即为致命)。
type Client struct {
	url      string
	user     string
	password string

	http   *http.Client
	sem    chan struct{}
	policy retry.Policy
	log    *zap.Logger
}

func NewClient(url, user, password string, log *zap.Logger) *Client {
	return &Client{
		url:      url,
		user:     user,
		password: password,
		http:     &http.Client{Timeout: rpcTimeout},
		sem:      make(chan struct{}, rpcConcurrency),
		policy:   retry.Policy{Attempts: 3, Backoff: time.Second},
		log:      log,
	}
}

type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call 发起一次带重试的 RPC 调用，返回原始 result。
// 信号量在每次尝试内部获取，重试等待期间不占并发额度。
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = c.callOnce(ctx, method, params)
		if callErr != nil {
			c.log.Warn("RPC 调用失败",
				zap.String("method", method), zap.Error(callErr))
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// callOnce 单次调用，不重试 (就绪探针直接用它，探针有自己的重试策略)
func (c *Client) callOnce(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		Jsonrpc: "1.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var decoded rpcResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("响应不是合法 JSON (http %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("节点返回 http %d", resp.StatusCode)
	}
	return decoded.Result, nil
}

// ChainInfo getblockchaininfo 里我们关心的字段
type ChainInfo struct {
	Chain                string `json:"chain"`
	Blocks               int64  `json:"blocks"`
	InitialBlockDownload bool   `json:"initialblockdownload"`
}

// Ready 就绪探针: 节点可达、且不在初始区块同步中。
// 同步中的节点不能作为事实来源，探针失败交给就绪门重试。
func (c *Client) Ready(ctx context.Context) error {
	raw, err := c.callOnce(ctx, "getblockchaininfo", nil)
	if err != nil {
		return err
	}
	var info ChainInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return err
	}
	if info.InitialBlockDownload {
		return fmt.Errorf("节点处于初始区块下载中 (height=%d)", info.Blocks)
	}
	return nil
}

type feeEstimate struct {
	Feerate *decimal.Decimal `json:"feerate"`
	Errors  []string         `json:"errors"`
}

// EstimateSmartFee 查询目标确认窗口的费率估计 (BTC/kvB)。
// 节点没有足够样本时不返回 feerate，此时 ok=false，调用方用兜底费率。
func (c *Client) EstimateSmartFee(ctx context.Context, confTarget int) (decimal.Decimal, bool, error) {
	raw, err := c.Call(ctx, "estimatesmartfee", confTarget)
	if err != nil {
		return decimal.Zero, false, err
	}
	var est feeEstimate
	if err := json.Unmarshal(raw, &est); err != nil {
		return decimal.Zero, false, err
	}
	if est.Feerate == nil {
		return decimal.Zero, false, nil
	}
	return *est.Feerate, true, nil
}

// TxOutput 解码后交易的单个输出
type TxOutput struct {
	Value        decimal.Decimal `json:"value"`
	N            uint32          `json:"n"`
	ScriptPubKey struct {
		Address string `json:"address"`
	} `json:"scriptPubKey"`
}

// RawTransaction decoderawtransaction 的结果 (只取需要的字段)
type RawTransaction struct {
	Txid string     `json:"txid"`
	Vout []TxOutput `json:"vout"`
}

// DecodeRawTransaction 把订阅推来的原始交易字节 (hex) 解码成结构
func (c *Client) DecodeRawTransaction(ctx context.Context, rawHex string) (*RawTransaction, error) {
	raw, err := c.Call(ctx, "decoderawtransaction", rawHex)
	if err != nil {
		return nil, err
	}
	var tx RawTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// TxInput createrawtransaction 的输入引用
type TxInput struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// CreateRawTransaction 构造未签名裸交易。
// outputs: 地址 -> 金额字符串 (8 位小数)
func (c *Client) CreateRawTransaction(ctx context.Context, inputs []TxInput, outputs map[string]string) (string, error) {
	// 金额用 json.Number 原样传给节点，避免 float 精度损失
	outs := make(map[string]json.Number, len(outputs))
	for addr, amount := range outputs {
		outs[addr] = json.Number(amount)
	}

	raw, err := c.Call(ctx, "createrawtransaction", inputs, outs)
	if err != nil {
		return "", err
	}
	var txHex string
	if err := json.Unmarshal(raw, &txHex); err != nil {
		return "", err
	}
	return txHex, nil
}

// SignResult signrawtransactionwithkey 的结果
type SignResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
}

// SignRawTransactionWithKey 用显式传入的 WIF 私钥签名
func (c *Client) SignRawTransactionWithKey(ctx context.Context, txHex string, keys []string) (*SignResult, error) {
	raw, err := c.Call(ctx, "signrawtransactionwithkey", txHex, keys, nil, "ALL")
	if err != nil {
		return nil, err
	}
	var signed SignResult
	if err := json.Unmarshal(raw, &signed); err != nil {
		return nil, err
	}
	if !signed.Complete {
		return nil, fmt.Errorf("签名不完整")
	}
	return &signed, nil
}

// SendRawTransaction 广播已签名交易，返回 txid
func (c *Client) SendRawTransaction(ctx context.Context, signedHex string) (string, error) {
	raw, err := c.Call(ctx, "sendrawtransaction", signedHex)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(raw, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// TxDetail getrawtransaction (verbose) 的结果，确认扫描只关心确认数
type TxDetail struct {
	Txid          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
}

// GetRawTransaction 按 txid 查交易与当前确认数
func (c *Client) GetRawTransaction(ctx context.Context, txid string) (*TxDetail, error) {
	raw, err := c.Call(ctx, "getrawtransaction", txid, true)
	if err != nil {
		return nil, err
	}
	var detail TxDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
