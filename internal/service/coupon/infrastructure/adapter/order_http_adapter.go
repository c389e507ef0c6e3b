package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"ecoupon/internal/pkg/httpclient"
	"ecoupon/internal/service/coupon/domain/port"
)

const orderQueryStatePath = "/api/order/v1/query_state"

// InstanceDiscoverer 把服务名解析成一个可用实例地址，由 nacos 客户端实现。
type InstanceDiscoverer interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// OrderHTTPAdapter 实现了 port.OrderStateOracle 接口。
// 每次查询都通过注册中心重新挑选实例，天然做了简单的负载均衡。
type OrderHTTPAdapter struct {
	client      *httpclient.Client
	discoverer  InstanceDiscoverer
	serviceName string
	timeout     time.Duration
}

// NewOrderHTTPAdapter 创建一个新的订单服务适配器。
func NewOrderHTTPAdapter(client *httpclient.Client, discoverer InstanceDiscoverer, serviceName string, timeout time.Duration) *OrderHTTPAdapter {
	return &OrderHTTPAdapter{
		client:      client,
		discoverer:  discoverer,
		serviceName: serviceName,
		timeout:     timeout,
	}
}

type orderStateResponse struct {
	Code int `json:"code"`
	Data struct {
		State string `json:"state"`
	} `json:"data"`
	Msg string `json:"msg"`
}

// QueryOrderState 查询订单当前状态。自带超时，慢对端不会拖死对账循环。
func (a *OrderHTTPAdapter) QueryOrderState(ctx context.Context, outTradeNo string) (port.OrderState, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ip, p, err := a.discoverer.DiscoverServiceInstance(a.serviceName)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", a.serviceName, err)
	}

	params := url.Values{}
	params.Set("out_trade_no", outTradeNo)

	var resp orderStateResponse
	serviceURL := fmt.Sprintf("http://%s:%d%s", ip, p, orderQueryStatePath)
	if err := a.client.GetJSON(ctx, serviceURL, params, &resp); err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("order service returned code %d: %s", resp.Code, resp.Msg)
	}
	return port.OrderState(resp.Data.State), nil
}
