// Package etherscan 封装区块浏览器的合约源码验证接口。
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "LSRWA-Express/internal/errors"
)

const (
	defaultBaseURL      = "https://api.etherscan.io/v2/api"
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 5 * time.Second

	statusPass            = "Pass - Verified"
	statusPending         = "Pending in queue"
	statusAlreadyVerified = "Already Verified"
)

// Config 描述访问浏览器 API 所需的信息。
type Config struct {
	APIKey       string
	BaseURL      string
	ChainID      int64
	Timeout      time.Duration
	PollInterval time.Duration
}

// Client 通过 HTTP 调用 Etherscan v2 多链接口。
type Client struct {
	apiKey       string
	baseURL      string
	chainID      int64
	pollInterval time.Duration
	httpClient   *http.Client
}

// Request 是一次源码验证提交。
type Request struct {
	Address common.Address
	// ContractName 为 "<sourceName>:<contractName>" 形式的全名。
	ContractName    string
	CompilerVersion string
	// StandardJSONInput 为 solc standard-json 格式的编译输入。
	StandardJSONInput []byte
	// ConstructorArgs 为 ABI 编码后的构造参数。
	ConstructorArgs []byte
}

// Result 描述验证结果。
type Result struct {
	GUID            string
	Status          string
	AlreadyVerified bool
}

// response 对应浏览器接口的通用响应结构。
type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// SourceCode 为 getsourcecode 接口返回的源码信息。
type SourceCode struct {
	SourceCode           string `json:"SourceCode"`
	ABI                  string `json:"ABI"`
	ContractName         string `json:"ContractName"`
	CompilerVersion      string `json:"CompilerVersion"`
	OptimizationUsed     string `json:"OptimizationUsed"`
	Runs                 string `json:"Runs"`
	ConstructorArguments string `json:"ConstructorArguments"`
}

// NewClient 根据配置创建浏览器客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "未提供区块浏览器 API Key")
	}
	if cfg.ChainID <= 0 {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "验证合约需要链 ID")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		chainID:      cfg.ChainID,
		pollInterval: poll,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Verify 检查合约是否已验证，未验证时提交源码并轮询直到得到最终结果。
// 轮询受 ctx 的截止时间约束。
func (c *Client) Verify(ctx context.Context, req Request) (Result, error) {
	verified, err := c.IsVerified(ctx, req.Address)
	if err != nil {
		return Result{}, err
	}
	if verified {
		return Result{Status: statusAlreadyVerified, AlreadyVerified: true}, nil
	}

	guid, already, err := c.Submit(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if already {
		return Result{Status: statusAlreadyVerified, AlreadyVerified: true}, nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Result{GUID: guid}, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), fmt.Sprintf("等待验证结果超时 (guid %s)", guid))
		case <-ticker.C:
		}

		status, err := c.CheckStatus(ctx, guid)
		if err != nil {
			return Result{GUID: guid}, err
		}
		switch {
		case status == statusPending || strings.HasPrefix(status, "Pending"):
			continue
		case status == statusPass:
			return Result{GUID: guid, Status: status}, nil
		case isAlreadyVerified(status):
			return Result{GUID: guid, Status: status, AlreadyVerified: true}, nil
		default:
			return Result{GUID: guid, Status: status}, xerrors.New(xerrors.CodeVerificationFailed,
				fmt.Sprintf("合约验证失败: %s", status), xerrors.WithMetadata("guid", guid))
		}
	}
}

// IsVerified 通过 getsourcecode 判断合约源码是否已公开。
func (c *Client) IsVerified(ctx context.Context, address common.Address) (bool, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address.Hex())

	resp, err := c.do(ctx, http.MethodGet, params, nil)
	if err != nil {
		return false, err
	}
	if resp.Status != "1" {
		return false, nil
	}
	var sources []SourceCode
	if err := json.Unmarshal(resp.Result, &sources); err != nil {
		return false, xerrors.Wrap(xerrors.CodeVerificationFailed, err, "解析 getsourcecode 响应失败")
	}
	return len(sources) > 0 && strings.TrimSpace(sources[0].SourceCode) != "", nil
}

// Submit 提交源码验证请求，返回 guid。合约已验证时 already 为 true。
func (c *Client) Submit(ctx context.Context, req Request) (guid string, already bool, err error) {
	if len(req.StandardJSONInput) == 0 {
		return "", false, xerrors.New(xerrors.CodeInvalidArgument, "缺少编译输入")
	}
	if req.ContractName == "" || req.CompilerVersion == "" {
		return "", false, xerrors.New(xerrors.CodeInvalidArgument, "缺少合约全名或编译器版本")
	}

	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address.Hex())
	form.Set("sourceCode", string(req.StandardJSONInput))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", req.CompilerVersion)
	// 参数名沿用浏览器接口的拼写。
	form.Set("constructorArguements", common.Bytes2Hex(req.ConstructorArgs))

	resp, err := c.do(ctx, http.MethodPost, nil, form)
	if err != nil {
		return "", false, err
	}
	result := resultString(resp.Result)
	if resp.Status != "1" {
		if isAlreadyVerified(result) {
			return "", true, nil
		}
		return "", false, xerrors.New(xerrors.CodeVerificationFailed, fmt.Sprintf("提交验证失败: %s", result))
	}
	if result == "" {
		return "", false, xerrors.New(xerrors.CodeVerificationFailed, "浏览器未返回 guid")
	}
	return result, false, nil
}

// CheckStatus 查询一次验证任务的状态。
func (c *Client) CheckStatus(ctx context.Context, guid string) (string, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "checkverifystatus")
	params.Set("guid", guid)

	resp, err := c.do(ctx, http.MethodGet, params, nil)
	if err != nil {
		return "", err
	}
	return resultString(resp.Result), nil
}

func (c *Client) do(ctx context.Context, method string, params, form url.Values) (*response, error) {
	query := url.Values{}
	query.Set("chainid", strconv.FormatInt(c.chainID, 10))
	for key, values := range params {
		query[key] = values
	}

	var body io.Reader
	if form != nil {
		form.Set("apikey", c.apiKey)
		body = strings.NewReader(form.Encode())
	} else {
		query.Set("apikey", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"?"+query.Encode(), body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeVerificationFailed, err, "构建浏览器请求失败")
	}
	if form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, requestError(ctx, err, "请求区块浏览器失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, xerrors.New(xerrors.CodeVerificationFailed,
			fmt.Sprintf("区块浏览器返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, requestError(ctx, err, "解析区块浏览器响应失败")
	}
	return &decoded, nil
}

func requestError(ctx context.Context, err error, message string) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "请求区块浏览器超时")
	}
	return xerrors.Wrap(xerrors.CodeVerificationFailed, err, message)
}

func resultString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func isAlreadyVerified(message string) bool {
	return strings.Contains(strings.ToLower(message), "already verified")
}
