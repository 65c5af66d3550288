package codeforces

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

	"ProgressSync/internal/adapter"
	"ProgressSync/internal/config"
	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"
	"ProgressSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Name 注册表中的平台名称
const Name = "codeforces"

const (
	statusOK = "OK"

	defaultTimeout            = 10 * time.Second
	defaultSubmissionsTimeout = 15 * time.Second
	defaultSubmissionsCount   = 100000
	maxBodyBytes              = 256 << 20
)

// errStatusFailed 接口返回 status != OK
var errStatusFailed = errors.New("codeforces: status FAILED")

func init() {
	adapter.Register(Name, NewCodeforcesClient)
}

// apiResponse Codeforces 统一响应结构
type apiResponse struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

// Client Codeforces 公共 API 客户端。所有请求共用一个限速器，
// 两次请求之间至少间隔 RequestDelay；本层不做重试。
type Client struct {
	baseURL            string
	timeout            time.Duration
	submissionsTimeout time.Duration
	httpClient         *http.Client
	limiter            *rate.Limiter
	logger             *logrus.Logger
}

// NewCodeforcesClient 工厂函数（注册到 adapter 注册表）
func NewCodeforcesClient(cfg *config.JudgeConfig, logger *logrus.Logger) interfaces.JudgeClient {
	return NewClient(cfg, logger)
}

// NewClient 创建客户端
func NewClient(cfg *config.JudgeConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	submissionsTimeout := cfg.SubmissionsTimeout
	if submissionsTimeout <= 0 {
		submissionsTimeout = defaultSubmissionsTimeout
	}
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &Client{
		baseURL:            strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:            timeout,
		submissionsTimeout: submissionsTimeout,
		httpClient:         httpclient.NewHTTPClient(cfg, logger),
		limiter:            rate.NewLimiter(limit, 1),
		logger:             logger,
	}
}

// Name ========== 实现JudgeClient接口 ==========
func (c *Client) Name() string {
	return Name
}

// FetchProfile user.info；status 非 OK 或结果为空视为 handle 不存在
func (c *Client) FetchProfile(ctx context.Context, handle string) (*model.CFUser, error) {
	params := url.Values{}
	params.Set("handles", handle)

	var users []model.CFUser
	if err := c.call(ctx, "user.info", params, c.timeout, &users); err != nil {
		if errors.Is(err, errStatusFailed) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrHandleNotFound, handle)
		}
		c.logger.WithError(err).WithField("handle", handle).Error("拉取Codeforces用户信息失败")
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrHandleNotFound, handle)
	}
	return &users[0], nil
}

// FetchRatingHistory user.rating；任何失败都退化为空列表
func (c *Client) FetchRatingHistory(ctx context.Context, handle string) ([]model.CFRatingChange, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var changes []model.CFRatingChange
	if err := c.call(ctx, "user.rating", params, c.timeout, &changes); err != nil {
		c.logger.WithError(err).WithField("handle", handle).Warn("拉取Codeforces积分历史失败，按空列表处理")
		return []model.CFRatingChange{}, nil
	}
	if changes == nil {
		changes = []model.CFRatingChange{}
	}
	return changes, nil
}

// FetchSubmissions user.status；任何失败都退化为空列表
func (c *Client) FetchSubmissions(ctx context.Context, handle string, from, count int) ([]model.CFSubmission, error) {
	if from <= 0 {
		from = 1
	}
	if count <= 0 {
		count = defaultSubmissionsCount
	}
	params := url.Values{}
	params.Set("handle", handle)
	params.Set("from", strconv.Itoa(from))
	params.Set("count", strconv.Itoa(count))

	var submissions []model.CFSubmission
	if err := c.call(ctx, "user.status", params, c.submissionsTimeout, &submissions); err != nil {
		c.logger.WithError(err).WithField("handle", handle).Warn("拉取Codeforces提交记录失败，按空列表处理")
		return []model.CFSubmission{}, nil
	}
	if submissions == nil {
		submissions = []model.CFSubmission{}
	}
	return submissions, nil
}

// call 限速 + 独立超时的 GET 请求，解析统一响应结构
func (c *Client) call(ctx context.Context, method string, params url.Values, timeout time.Duration, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: 等待限速失败: %v", interfaces.ErrUpstreamUnavailable, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, method, params.Encode())
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", interfaces.ErrUpstreamUnavailable, method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("关闭Codeforces响应体失败: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: 读取响应失败: %v", interfaces.ErrUpstreamUnavailable, method, err)
	}

	// Codeforces 对 handle 不存在等业务错误返回 400 + status=FAILED，仍按统一结构解析
	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %s: HTTP %d, 响应无法解析: %v", interfaces.ErrUpstreamUnavailable, method, resp.StatusCode, err)
	}
	if envelope.Status != statusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s: HTTP %d: %s", interfaces.ErrUpstreamUnavailable, method, resp.StatusCode, envelope.Comment)
		}
		return fmt.Errorf("%w: %s: %s", errStatusFailed, method, envelope.Comment)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("解析%s结果失败: %w", method, err)
	}
	return nil
}
