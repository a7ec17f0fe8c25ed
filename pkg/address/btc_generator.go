package address

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// BTCGenerator 比特币充值地址生成器。
// 每个订单生成一把独立的随机私钥和一次性 P2WPKH 地址，
// 不走 HD 派生 (网关模型是一单一地址一私钥)。
type BTCGenerator struct {
	network *chaincfg.Params
}

func NewBTCGenerator(network *chaincfg.Params) *BTCGenerator {
	return &BTCGenerator{network: network}
}

// NewAddress 生成一对新的 (bech32 地址, 压缩 WIF 私钥)。
// WIF 由调用方负责加密后落库，这里不做任何持久化。
func (g *BTCGenerator) NewAddress() (string, string, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return "", "", err
	}

	wif, err := btcutil.NewWIF(privKey, g.network, true)
	if err != nil {
		return "", "", err
	}

	addr, err := g.PubKeyToSegWitAddress(privKey.PubKey().SerializeCompressed())
	if err != nil {
		return "", "", err
	}

	return addr, wif.String(), nil
}

// PubKeyToSegWitAddress 将压缩公钥转换为 P2WPKH (bech32) 地址
func (g *BTCGenerator) PubKeyToSegWitAddress(pubKeyBytes []byte) (string, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pubKeyBytes), g.network)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
