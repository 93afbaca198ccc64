package exchange

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/declansx/odds-maximizer-betting-bot/internal/config"
)

// Auth holds the bot's signing identity. The private key signs EIP-712
// typed-data payloads for order submission and cancellation; the derived
// address is the maker id the venue records on our resting orders, and
// the id the order book mirror excludes from derived metrics.
type Auth struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	apiKey     string
}

// NewAuth creates an Auth instance from config.
func NewAuth(cfg config.Config) (*Auth, error) {
	// Strip 0x prefix if present
	keyHex := cfg.Wallet.PrivateKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Auth{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(int64(cfg.Wallet.ChainID)),
		apiKey:     cfg.API.ApiKey,
	}, nil
}

// Address returns the signer's address — the bot's maker id.
func (a *Auth) Address() common.Address {
	return a.address
}

// ChainID returns the configured chain ID.
func (a *Auth) ChainID() *big.Int {
	return a.chainID
}

// ApiKey returns the venue session key sent with every request.
func (a *Auth) ApiKey() string {
	return a.apiKey
}

// NewSalt returns a fresh random salt for order payloads. Salts from
// crypto/rand never repeat across concurrent posts, which a seeded
// source could when two orders sign in the same instant.
func (a *Auth) NewSalt() (*big.Int, error) {
	salt, err := rand.Int(rand.Reader, ethmath.MaxBig256)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// orderTypedData is the EIP-712 schema for new maker orders.
var orderTypedData = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Order": {
		{Name: "marketHash", Type: "string"},
		{Name: "maker", Type: "address"},
		{Name: "totalBetSize", Type: "uint256"},
		{Name: "percentageOdds", Type: "uint256"},
		{Name: "isMakerBettingOutcomeOne", Type: "bool"},
		{Name: "expiry", Type: "uint256"},
		{Name: "salt", Type: "uint256"},
	},
}

// cancelTypedData is the EIP-712 schema for batch cancellations.
var cancelTypedData = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"Details": {
		{Name: "orderHashes", Type: "string[]"},
		{Name: "timestamp", Type: "uint256"},
	},
}

// SignOrder signs a new-order payload and returns the hex signature.
func (a *Auth) SignOrder(marketHash string, totalBetSize, percentageOdds *big.Int, makerBettingOutcomeOne bool, expiry int64, salt *big.Int) (string, error) {
	sig, err := a.signTypedData(
		&apitypes.TypedDataDomain{
			Name:    "SportXOrders",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		orderTypedData,
		apitypes.TypedDataMessage{
			"marketHash":               marketHash,
			"maker":                    a.address.Hex(),
			"totalBetSize":             totalBetSize.String(),
			"percentageOdds":           percentageOdds.String(),
			"isMakerBettingOutcomeOne": makerBettingOutcomeOne,
			"expiry":                   fmt.Sprintf("%d", expiry),
			"salt":                     salt.String(),
		},
		"Order",
	)
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignCancellation signs a batch-cancel payload and returns the hex signature.
func (a *Auth) SignCancellation(orderHashes []string, timestamp int64) (string, error) {
	hashes := make([]interface{}, len(orderHashes))
	for i, h := range orderHashes {
		hashes[i] = h
	}

	sig, err := a.signTypedData(
		&apitypes.TypedDataDomain{
			Name:    "CancelOrderV2SportX",
			Version: "1.0",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
		},
		cancelTypedData,
		apitypes.TypedDataMessage{
			"orderHashes": hashes,
			"timestamp":   fmt.Sprintf("%d", timestamp),
		},
		"Details",
	)
	if err != nil {
		return "", fmt.Errorf("sign cancellation: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// signTypedData signs EIP-712 typed data and adjusts V to 27/28.
func (a *Auth) signTypedData(
	domain *apitypes.TypedDataDomain,
	typesDef apitypes.Types,
	message apitypes.TypedDataMessage,
	primaryType string,
) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: primaryType,
		Domain:      *domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}

	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
