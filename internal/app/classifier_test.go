package app

import (
	"testing"
	"time"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testToken  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testClassifier() *TradeClassifier {
	return NewTradeClassifier(nil, DefaultClassifierConfig())
}

func TestClassify_FailedTxIsUnknown(t *testing.T) {
	intent := testClassifier().Classify(&RawTx{
		TxID:         "tx-1",
		Network:      "solana",
		Failed:       true,
		Accounts:     []string{testWallet},
		PreBalances:  []float64{10},
		PostBalances: []float64{5},
	}, testWallet)

	if intent.Action != ActionUnknown {
		t.Errorf("action = %s, want unknown for failed tx", intent.Action)
	}
}

func TestClassify_NativeDecreaseIsBuy(t *testing.T) {
	intent := testClassifier().Classify(&RawTx{
		TxID:         "tx-1",
		Network:      "solana",
		Accounts:     []string{testWallet, "other"},
		PreBalances:  []float64{10, 1},
		PostBalances: []float64{9.5, 1},
		TokenChanges: []TokenBalanceChange{
			{Owner: testWallet, TokenAddress: testToken, Delta: 1234.5},
		},
		BlockTime: time.Now(),
	}, testWallet)

	if intent.Action != ActionBuy {
		t.Fatalf("action = %s, want buy", intent.Action)
	}
	if intent.NativeAmount != 0.5 {
		t.Errorf("nativeAmount = %v, want 0.5", intent.NativeAmount)
	}
	if intent.TokenAddress != testToken {
		t.Errorf("token = %s, want %s", intent.TokenAddress, testToken)
	}
}

func TestClassify_NativeIncreaseIsSell(t *testing.T) {
	intent := testClassifier().Classify(&RawTx{
		TxID:         "tx-1",
		Network:      "solana",
		Accounts:     []string{testWallet},
		PreBalances:  []float64{9.5},
		PostBalances: []float64{10},
		TokenChanges: []TokenBalanceChange{
			{Owner: testWallet, TokenAddress: testToken, Delta: -1234.5},
		},
	}, testWallet)

	if intent.Action != ActionSell {
		t.Fatalf("action = %s, want sell", intent.Action)
	}
	if intent.NativeAmount != 0.5 {
		t.Errorf("nativeAmount = %v, want 0.5", intent.NativeAmount)
	}
	if intent.TokenAddress != testToken {
		t.Errorf("token = %s, want %s", intent.TokenAddress, testToken)
	}
}

func TestClassify_FeeOnlyDeltaIsUnknown(t *testing.T) {
	intent := testClassifier().Classify(&RawTx{
		TxID:         "tx-1",
		Network:      "solana",
		Accounts:     []string{testWallet},
		PreBalances:  []float64{10},
		PostBalances: []float64{9.9995},
	}, testWallet)

	if intent.Action != ActionUnknown {
		t.Errorf("action = %s, want unknown for fee-only delta", intent.Action)
	}
}

func TestClassify_WalletNotInAccounts(t *testing.T) {
	intent := testClassifier().Classify(&RawTx{
		TxID:         "tx-1",
		Network:      "solana",
		Accounts:     []string{"someone-else"},
		PreBalances:  []float64{10},
		PostBalances: []float64{5},
	}, testWallet)

	if intent.Action != ActionUnknown {
		t.Errorf("action = %s, want unknown when wallet absent", intent.Action)
	}
}

func TestClassify_TokenDirectionMustMatchAction(t *testing.T) {
	// Buy with only an outgoing token change: token stays unknown.
	intent := testClassifier().Classify(&RawTx{
		TxID:         "tx-1",
		Network:      "solana",
		Accounts:     []string{testWallet},
		PreBalances:  []float64{10},
		PostBalances: []float64{9},
		TokenChanges: []TokenBalanceChange{
			{Owner: testWallet, TokenAddress: testToken, Delta: -50},
			{Owner: "other", TokenAddress: testToken, Delta: 50},
		},
	}, testWallet)

	if intent.Action != ActionBuy {
		t.Fatalf("action = %s, want buy", intent.Action)
	}
	if intent.TokenAddress != UnknownToken {
		t.Errorf("token = %s, want %s", intent.TokenAddress, UnknownToken)
	}
}
