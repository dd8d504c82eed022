package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"LSRWA-Express/internal/config"
	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/web3"
	"LSRWA-Express/internal/web3/ethereum"
)

// DialFunc opens a client for one configured network.
type DialFunc func(ctx context.Context, cfg ethereum.Config) (web3.Client, error)

// Option customises a Registry.
type Option func(*Registry)

// WithDialer replaces the RPC dialer, mainly for tests.
func WithDialer(dial DialFunc) Option {
	return func(r *Registry) {
		if dial != nil {
			r.dial = dial
		}
	}
}

// Registry resolves network names to chain clients, dialing each network on
// first use.
type Registry struct {
	cfg  *config.Config
	env  *config.Env
	dial DialFunc

	mu      sync.Mutex
	clients map[string]web3.Client
}

// NewRegistry prepares a registry over the networks declared in cfg.
func NewRegistry(cfg *config.Config, env *config.Env, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("未提供网络配置")
	}
	if len(cfg.Networks) == 0 {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "未配置任何网络")
	}
	r := &Registry{
		cfg:     cfg,
		env:     env,
		clients: make(map[string]web3.Client),
		dial: func(ctx context.Context, c ethereum.Config) (web3.Client, error) {
			return ethereum.NewClient(ctx, c)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Client returns the client for the named network, or the default network
// when name is empty.
func (r *Registry) Client(ctx context.Context, name string) (string, web3.Client, error) {
	if r == nil {
		return "", nil, errors.New("未初始化的链客户端注册表")
	}
	resolved, network, err := r.cfg.Network(name)
	if err != nil {
		return "", nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "选择网络失败")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[resolved]; ok {
		return resolved, client, nil
	}

	client, err := r.dial(ctx, ethereum.Config{
		Name:    resolved,
		RPCURL:  r.env.RPCURL(network),
		ChainID: network.ChainID,
		Notes:   network.Description,
	})
	if err != nil {
		return "", nil, err
	}
	r.clients[resolved] = client
	return resolved, client, nil
}

// Accounts returns the signing keys configured for the named network.
func (r *Registry) Accounts(name string) ([]string, error) {
	_, network, err := r.cfg.Network(name)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "选择网络失败")
	}
	return r.env.Accounts(network), nil
}

// Close releases all clients opened by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Networks returns the configured network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	return r.cfg.NetworkNames()
}

// Dialed returns the names of networks with an open client.
func (r *Registry) Dialed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String implements fmt.Stringer for logging.
func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d networks)", len(r.cfg.Networks))
}
