package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Config 描述了 lsrwactl 启动时需要加载的全部配置。
// 私钥、RPC 地址、浏览器 API Key 等敏感值只记录环境变量名。
type Config struct {
	DefaultNetwork string                   `json:"default_network"`
	Networks       map[string]NetworkConfig `json:"networks"`
	Etherscan      EtherscanConfig          `json:"etherscan"`
	Solidity       SolidityConfig           `json:"solidity"`
	Contract       ContractConfig           `json:"contract"`
	Paths          PathsConfig              `json:"paths"`
	Storage        StorageConfig            `json:"storage"`
	Events         EventsConfig             `json:"events"`
	Lock           LockConfig               `json:"lock"`
	Log            LogConfig                `json:"log"`
}

// NetworkConfig 描述一个可通过 --network 选择的链。
type NetworkConfig struct {
	URL         string   `json:"url"`
	URLEnv      string   `json:"url_env"`
	AccountsEnv []string `json:"accounts_env"`
	ChainID     int64    `json:"chain_id"`
	Description string   `json:"description"`
	// TimeoutSeconds 限制单条交易等待上链的时间，0 表示不限制。
	TimeoutSeconds int `json:"timeout_seconds"`
}

// EtherscanConfig 描述区块浏览器验证接口。
type EtherscanConfig struct {
	APIKey              string `json:"api_key"`
	APIKeyEnv           string `json:"api_key_env"`
	APIURL              string `json:"api_url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
}

// SolidityConfig 记录编译器版本与优化器设置，用于和编译产物比对。
type SolidityConfig struct {
	Version   string          `json:"version"`
	Optimizer OptimizerConfig `json:"optimizer"`
}

// OptimizerConfig 对应 solc 的 optimizer 设置。
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// ContractConfig 描述被部署合约的名称以及脚本读取的环境变量名。
type ContractConfig struct {
	Name       string `json:"name"`
	USDCEnv    string `json:"usdc_env"`
	TokenEnv   string `json:"token_env"`
	AddressEnv string `json:"address_env"`
	OwnerEnv   string `json:"owner_env"`
}

// PathsConfig 描述编译产物、部署模块和部署日志所在目录。
type PathsConfig struct {
	Artifacts   string `json:"artifacts"`
	Modules     string `json:"modules"`
	Deployments string `json:"deployments"`
}

// StorageConfig 描述部署记录的持久化方式。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	DSNEnv                 string `json:"dsn_env"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// EventsConfig 描述部署事件的广播方式。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 为事件广播与签名锁共用的 Redis 连接参数。
type RedisConfig struct {
	Address     string `json:"address"`
	PasswordEnv string `json:"password_env"`
	DB          int    `json:"db"`
	Key         string `json:"key"`
}

// RabbitMQConfig 描述 RabbitMQ 事件队列。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	URLEnv     string `json:"url_env"`
	Queue      string `json:"queue"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LockConfig 防止多个操作者同时使用同一签名账户。
type LockConfig struct {
	Driver     string      `json:"driver"`
	TTLSeconds int         `json:"ttl_seconds"`
	Redis      RedisConfig `json:"redis"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	Output    string `json:"output"`
	AuditPath string `json:"audit_path"`
}

// Default 返回与原 Hardhat 配置等价的默认配置。
func Default() *Config {
	return &Config{
		DefaultNetwork: "sepolia",
		Networks: map[string]NetworkConfig{
			"sepolia": {
				URLEnv:      "SEPOLIA_RPC_URL",
				AccountsEnv: []string{"PRIVATE_KEY"},
				ChainID:     11155111,
				Description: "Ethereum Sepolia testnet",
			},
		},
		Etherscan: EtherscanConfig{
			APIKeyEnv: "ETHERSCAN_API_KEY",
		},
		Solidity: SolidityConfig{
			Version:   "0.8.30",
			Optimizer: OptimizerConfig{Enabled: true, Runs: 200},
		},
		Contract: ContractConfig{
			Name:       "LSRWAExpress",
			USDCEnv:    "USDC_ADDRESS",
			TokenEnv:   "TOKEN_ADDRESS",
			AddressEnv: "CONTRACT_ADDRESS",
			OwnerEnv:   "OWNER_ADDRESS",
		},
		Storage: StorageConfig{Driver: "file"},
		Events:  EventsConfig{Driver: "none"},
		Lock:    LockConfig{Driver: "none"},
		Log:     LogConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load 解析指定路径的 JSON 配置文件，未出现的字段沿用默认值。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional 与 Load 相同，但文件不存在时返回默认配置。
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		cfg.applyDefaults(".")
		return cfg, nil
	}
	return Load(path)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Networks == nil {
		c.Networks = map[string]NetworkConfig{}
	}
	if c.Contract.Name == "" {
		c.Contract.Name = "LSRWAExpress"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Lock.Driver == "" {
		c.Lock.Driver = "none"
	}
	if c.Lock.TTLSeconds <= 0 {
		c.Lock.TTLSeconds = 600
	}
	if c.Etherscan.PollIntervalSeconds <= 0 {
		c.Etherscan.PollIntervalSeconds = 5
	}
	if c.Etherscan.TimeoutSeconds <= 0 {
		c.Etherscan.TimeoutSeconds = 300
	}

	c.Paths.Artifacts = resolvePath(baseDir, c.Paths.Artifacts, "artifacts")
	c.Paths.Modules = resolvePath(baseDir, c.Paths.Modules, filepath.Join("ignition", "modules"))
	c.Paths.Deployments = resolvePath(baseDir, c.Paths.Deployments, "deployments")
	if c.Log.AuditPath != "" && !filepath.IsAbs(c.Log.AuditPath) {
		c.Log.AuditPath = filepath.Join(baseDir, c.Log.AuditPath)
	}
}

func resolvePath(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}

// Validate 检查配置之间的一致性。
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return errors.New("至少需要配置一个网络")
	}
	if c.DefaultNetwork != "" {
		if _, ok := c.Networks[c.DefaultNetwork]; !ok {
			return fmt.Errorf("默认网络 %s 未在 networks 中配置", c.DefaultNetwork)
		}
	}
	for name, network := range c.Networks {
		if strings.TrimSpace(network.URL) == "" && strings.TrimSpace(network.URLEnv) == "" {
			return fmt.Errorf("网络 %s 需要配置 url 或 url_env", name)
		}
	}
	switch c.Storage.Driver {
	case "file", "mysql":
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case "none", "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的事件驱动: %s", c.Events.Driver)
	}
	switch c.Lock.Driver {
	case "none", "redis":
	default:
		return fmt.Errorf("未知的锁驱动: %s", c.Lock.Driver)
	}
	return nil
}

// Network 返回指定名称的网络配置，name 为空时使用默认网络。
func (c *Config) Network(name string) (string, NetworkConfig, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	if name == "" && len(c.Networks) == 1 {
		for only := range c.Networks {
			name = only
		}
	}
	network, ok := c.Networks[name]
	if !ok {
		return "", NetworkConfig{}, fmt.Errorf("网络 %q 未配置，可选: %s", name, strings.Join(c.NetworkNames(), ", "))
	}
	return name, network, nil
}

// NetworkNames 返回排序后的网络名称列表。
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
