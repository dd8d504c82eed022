package cli

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"LSRWA-Express/internal/artifacts"
	"LSRWA-Express/internal/config"
	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/etherscan"
	"LSRWA-Express/internal/events"
	"LSRWA-Express/internal/lock"
	"LSRWA-Express/internal/ignition"
	"LSRWA-Express/internal/lsrwa"
	storage "LSRWA-Express/internal/storage/mysql"
	"LSRWA-Express/internal/web3"
	"LSRWA-Express/internal/web3/provider"
	"LSRWA-Express/pkg/logger"
)

// app holds everything a command needs for one network.
type app struct {
	cfg      *config.Config
	env      *config.Env
	registry *provider.Registry
	opts     Options

	network   string
	netCfg    config.NetworkConfig
	client    web3.Client
	records   storage.RecordRepository
	publisher events.Publisher
	locker    lock.Locker

	// runID tags every journal record written by this invocation.
	runID string
}

// envCheck validates the environment before any RPC endpoint is dialed.
type envCheck func(cfg *config.Config, env *config.Env) error

func usdcEnv(c config.ContractConfig) string     { return c.USDCEnv }
func tokenEnv(c config.ContractConfig) string    { return c.TokenEnv }
func ownerEnv(c config.ContractConfig) string    { return c.OwnerEnv }
func contractEnv(c config.ContractConfig) string { return c.AddressEnv }

// requireAddress rejects an unset or malformed address variable.
func requireAddress(name func(config.ContractConfig) string) envCheck {
	return func(cfg *config.Config, env *config.Env) error {
		key := name(cfg.Contract)
		_, err := web3.ParseAddress(key, env.Lookup(key))
		return err
	}
}

// optionalAddress validates the variable only when it is set.
func optionalAddress(name func(config.ContractConfig) string) envCheck {
	return func(cfg *config.Config, env *config.Env) error {
		key := name(cfg.Contract)
		if value := env.Lookup(key); value != "" {
			_, err := web3.ParseAddress(key, value)
			return err
		}
		return nil
	}
}

// loadSettings reads the configuration and environment and sets up logging.
func loadSettings(flags *globalFlags) (*config.Config, *config.Env, error) {
	cfg, err := config.LoadOptional(flags.configPath)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "加载配置失败")
	}
	env, err := config.LoadEnv(flags.envFile)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "加载环境变量失败")
	}

	logCfg := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Audit: logger.AuditConfig{
			Enabled: cfg.Log.AuditPath != "",
			Path:    cfg.Log.AuditPath,
		},
	}
	if cfg.Log.Output != "" {
		logCfg.OutputPaths = []string{cfg.Log.Output}
	}
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "初始化日志失败")
	}
	return cfg, env, nil
}

// newApp runs checks, then connects to the selected network and opens the
// journal, event publisher and signer lock.
func newApp(ctx context.Context, flags *globalFlags, opts Options, checks ...envCheck) (*app, error) {
	cfg, env, err := loadSettings(flags)
	if err != nil {
		return nil, err
	}
	for _, check := range checks {
		if err := check(cfg, env); err != nil {
			return nil, err
		}
	}

	registry, err := newRegistry(cfg, env, opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, env: env, registry: registry, opts: opts, runID: uuid.NewString()}
	if err := a.open(ctx, flags.network); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newRegistry(cfg *config.Config, env *config.Env, opts Options) (*provider.Registry, error) {
	var registryOpts []provider.Option
	if opts.Dialer != nil {
		registryOpts = append(registryOpts, provider.WithDialer(opts.Dialer))
	}
	return provider.NewRegistry(cfg, env, registryOpts...)
}

func (a *app) open(ctx context.Context, network string) error {
	name, client, err := a.registry.Client(ctx, network)
	if err != nil {
		return err
	}
	_, netCfg, err := a.cfg.Network(name)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeConfigInvalid, err, "选择网络失败")
	}
	a.network, a.netCfg, a.client = name, netCfg, client

	a.records, err = storage.NewRepository(ctx, storage.Config{
		Driver:          a.cfg.Storage.Driver,
		DSN:             a.env.Resolve(a.cfg.Storage.DSN, a.cfg.Storage.DSNEnv),
		Dir:             a.cfg.Paths.Deployments,
		MaxOpenConns:    a.cfg.Storage.MaxOpenConns,
		MaxIdleConns:    a.cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: time.Duration(a.cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	a.publisher, err = events.New(ctx, events.Config{
		Driver: a.cfg.Events.Driver,
		Redis: events.RedisConfig{
			Address:  a.cfg.Events.Redis.Address,
			Password: a.env.Lookup(a.cfg.Events.Redis.PasswordEnv),
			DB:       a.cfg.Events.Redis.DB,
			Key:      a.cfg.Events.Redis.Key,
		},
		RabbitMQ: events.RabbitMQConfig{
			URL:        a.env.Resolve(a.cfg.Events.RabbitMQ.URL, a.cfg.Events.RabbitMQ.URLEnv),
			Queue:      a.cfg.Events.RabbitMQ.Queue,
			Durable:    a.cfg.Events.RabbitMQ.Durable,
			AutoDelete: a.cfg.Events.RabbitMQ.AutoDelete,
		},
	})
	if err != nil {
		return err
	}

	a.locker, err = lock.New(ctx, lock.Config{
		Driver:   a.cfg.Lock.Driver,
		TTL:      time.Duration(a.cfg.Lock.TTLSeconds) * time.Second,
		Address:  a.cfg.Lock.Redis.Address,
		Password: a.env.Lookup(a.cfg.Lock.Redis.PasswordEnv),
		DB:       a.cfg.Lock.Redis.DB,
	})
	return err
}

// Close releases every resource opened by newApp.
func (a *app) Close() {
	if a == nil {
		return
	}
	log := logger.L()
	if closer, ok := a.locker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn("关闭签名锁失败", "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn("关闭事件发布器失败", "error", err)
		}
	}
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			log.Warn("关闭部署记录失败", "error", err)
		}
	}
	a.registry.Close()
}

// signer returns the first configured account of the network, or nil when
// none is configured. Commands that send transactions report the missing
// account themselves.
func (a *app) signer(ctx context.Context) (*web3.Signer, error) {
	accounts := a.env.Accounts(a.netCfg)
	if len(accounts) == 0 {
		return nil, nil
	}
	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return web3.NewSigner(accounts[0], chainID)
}

// verifier returns the configured block explorer client, or nil when no API
// key is set.
func (a *app) verifier(ctx context.Context) (lsrwa.Verifier, error) {
	if a.opts.Verifier != nil {
		return a.opts.Verifier, nil
	}
	apiKey := a.env.Resolve(a.cfg.Etherscan.APIKey, a.cfg.Etherscan.APIKeyEnv)
	if apiKey == "" {
		return nil, nil
	}
	chainID, err := a.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	client, err := etherscan.NewClient(etherscan.Config{
		APIKey:       apiKey,
		BaseURL:      a.cfg.Etherscan.APIURL,
		ChainID:      chainID.Int64(),
		PollInterval: time.Duration(a.cfg.Etherscan.PollIntervalSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *app) waitTimeout() time.Duration {
	return time.Duration(a.netCfg.TimeoutSeconds) * time.Second
}

func (a *app) store() *artifacts.Store {
	return artifacts.NewStore(a.cfg.Paths.Artifacts)
}

// service builds the contract service for the selected network.
func (a *app) service(ctx context.Context) (*lsrwa.Service, error) {
	opts := []lsrwa.Option{
		lsrwa.WithRecords(a.records),
		lsrwa.WithPublisher(a.publisher),
		lsrwa.WithLocker(a.locker),
		lsrwa.WithContractName(a.cfg.Contract.Name),
		lsrwa.WithSolidity(a.cfg.Solidity),
		lsrwa.WithWaitTimeout(a.waitTimeout()),
		lsrwa.WithRunID(a.runID),
	}
	verifier, err := a.verifier(ctx)
	if err != nil {
		return nil, err
	}
	if verifier != nil {
		opts = append(opts, lsrwa.WithVerifier(verifier))
	}
	return lsrwa.NewService(a.client, a.network, a.store(), opts...)
}

func (a *app) runner() (*ignition.Runner, error) {
	return ignition.NewRunner(a.client, a.network, a.store(), a.records,
		ignition.WithPublisher(a.publisher),
		ignition.WithLocker(a.locker),
		ignition.WithLookup(a.lookup),
		ignition.WithWaitTimeout(a.waitTimeout()),
		ignition.WithRunID(a.runID),
	)
}

func (a *app) lookup(name string) string {
	return a.env.Lookup(name)
}
