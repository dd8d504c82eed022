package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Env 负责解析 .env 文件与进程环境变量。
// 进程中已经存在的变量优先于 .env 文件中的同名变量。
type Env struct {
	v *viper.Viper
}

// LoadEnv 读取 path 指向的 .env 文件，文件不存在时仅使用进程环境变量。
func LoadEnv(path string) (*Env, error) {
	v := viper.New()
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取 env 文件失败: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("检查 env 文件失败: %w", err)
		}
	}
	return &Env{v: v}, nil
}

// NewEnv 使用固定的键值构造 Env，主要用于测试。
func NewEnv(values map[string]string) *Env {
	v := viper.New()
	for key, value := range values {
		v.Set(key, value)
	}
	return &Env{v: v}
}

// Lookup 返回变量值，未设置时返回空字符串。
func (e *Env) Lookup(name string) string {
	if e == nil || e.v == nil || strings.TrimSpace(name) == "" {
		return ""
	}
	return strings.TrimSpace(e.v.GetString(name))
}

// Resolve 优先返回字面值，其次读取 envName 指向的变量。
func (e *Env) Resolve(literal, envName string) string {
	if value := strings.TrimSpace(literal); value != "" {
		return value
	}
	return e.Lookup(envName)
}

// RPCURL 返回网络的 RPC 地址。
func (e *Env) RPCURL(network NetworkConfig) string {
	return e.Resolve(network.URL, network.URLEnv)
}

// Accounts 返回网络配置的签名私钥，未设置的变量会被跳过。
func (e *Env) Accounts(network NetworkConfig) []string {
	accounts := make([]string, 0, len(network.AccountsEnv))
	for _, name := range network.AccountsEnv {
		if key := e.Lookup(name); key != "" {
			accounts = append(accounts, key)
		}
	}
	return accounts
}
