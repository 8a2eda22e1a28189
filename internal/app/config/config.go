package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

type Configuration struct {
	BindAddress   string `toml:"bind_address"`
	LogLevel      string `toml:"log_level"`
	PublicBaseURL string `toml:"public_base_url"`
	// db
	DbHost      string `toml:"db_host"`
	DbPort      int    `toml:"db_port"`
	DbName      string `toml:"db_name"`
	DbUser      string `toml:"db_user"`
	DbPass      string `toml:"db_pass"`
	AutoMigrate bool   `toml:"auto_migrate"`
	// ton
	TonNetwork      string `toml:"ton_network"`
	TonConfigURL    string `toml:"ton_config_url"`
	TonRecipient    string `toml:"ton_recipient"`
	TonCenterAPI    string `toml:"toncenter_api"`
	TonCenterAPIKey string `toml:"toncenter_api_key"`
	TonTxLimit      int    `toml:"ton_tx_limit"`
	// solana
	SolanaRPCURL    string `toml:"solana_rpc_url"`
	SolanaCluster   string `toml:"solana_cluster"`
	SolanaRecipient string `toml:"solana_recipient"`
	SolanaFeePayer  string `toml:"solana_fee_payer"`
	SolanaPayLabel  string `toml:"solana_pay_label"`
	BlinkSKU        string `toml:"blink_sku"`
	// matching
	UpstreamTimeoutMs  int `toml:"upstream_timeout_ms"`
	MatchWindowMinutes int `toml:"match_window_minutes"`
}

func NewConfiguration() *Configuration {
	return &Configuration{
		BindAddress:        ":8081",
		LogLevel:           "debug",
		PublicBaseURL:      "http://localhost:8081",
		DbHost:             "localhost",
		DbPort:             5432,
		DbName:             "database",
		DbUser:             "username",
		DbPass:             "password",
		TonNetwork:         "testnet",
		TonConfigURL:       "https://ton.org/testnet-global.config.json",
		TonCenterAPI:       "https://testnet.toncenter.com/api/v3",
		TonTxLimit:         40,
		SolanaRPCURL:       "https://api.devnet.solana.com",
		SolanaCluster:      "devnet",
		SolanaPayLabel:     "LinkPass",
		BlinkSKU:           "vip-pass",
		UpstreamTimeoutMs:  5000,
		MatchWindowMinutes: 10,
	}
}

// Validate checks values that would otherwise fail late, on the first request.
func (c *Configuration) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(c.TonNetwork) {
	case "testnet", "mainnet":
	default:
		return fmt.Errorf("ton_network: unknown network %q", c.TonNetwork)
	}
	switch strings.ToLower(c.SolanaCluster) {
	case "devnet", "testnet", "mainnet", "mainnet-beta":
	default:
		return fmt.Errorf("solana_cluster: unknown cluster %q", c.SolanaCluster)
	}
	if payer := strings.TrimSpace(c.SolanaFeePayer); payer != "" {
		key, err := solana.PublicKeyFromBase58(payer)
		if err != nil {
			return fmt.Errorf("solana_fee_payer: %w", err)
		}
		if key.IsZero() {
			return fmt.Errorf("solana_fee_payer: the zero key cannot pay fees")
		}
	}
	if c.UpstreamTimeoutMs <= 0 {
		return fmt.Errorf("upstream_timeout_ms must be positive")
	}
	if c.MatchWindowMinutes <= 0 {
		return fmt.Errorf("match_window_minutes must be positive")
	}
	if c.TonTxLimit <= 0 {
		return fmt.Errorf("ton_tx_limit must be positive")
	}
	return nil
}

func (c *Configuration) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutMs) * time.Millisecond
}

func (c *Configuration) MatchWindow() time.Duration {
	return time.Duration(c.MatchWindowMinutes) * time.Minute
}

func (c *Configuration) TonMainnet() bool {
	return strings.EqualFold(c.TonNetwork, "mainnet")
}
