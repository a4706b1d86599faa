// internal/service/purchase/infrastructure/adapter/platform_http_adapter.go
package adapter

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/service/purchase/domain"
	"ticketradar/internal/service/purchase/port"
)

// PlatformHttpAdapter 实现 port.TicketPlatform，对接票务平台的下单网关。
//
// 幂等键由 (intentID, attemptNumber) 构成：同一次尝试因网络问题重放时
// 平台不会重复下单，新一次尝试则用新键。
type PlatformHttpAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewPlatformHttpAdapter(client *httpclient.Client, baseURL string) *PlatformHttpAdapter {
	return &PlatformHttpAdapter{client: client, baseURL: baseURL}
}

type purchaseRequest struct {
	ListingID string   `json:"listingId"`
	Quantity  int      `json:"quantity"`
	MaxPrice  *float64 `json:"maxPrice,omitempty"`
}

type purchaseResponse struct {
	Status     string   `json:"status"` // ok | unavailable | price_changed
	OrderRef   string   `json:"orderRef"`
	FinalPrice *float64 `json:"finalPrice"`
	Fee        *float64 `json:"fee"`
	Message    string   `json:"message"`
}

func (a *PlatformHttpAdapter) AttemptPurchase(ctx context.Context, intent *domain.PurchaseIntent, attemptNumber int) (*port.PurchaseResult, error) {
	req := purchaseRequest{
		ListingID: intent.ListingID,
		Quantity:  intent.Quantity,
		MaxPrice:  intent.MaxPrice,
	}
	headers := map[string]string{
		"Idempotency-Key": fmt.Sprintf("%s:%d", intent.ID, attemptNumber),
	}

	var resp purchaseResponse
	err := a.client.PostJSON(ctx, a.baseURL+"/api/v1/purchase", req, headers, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retriable() {
			// 4xx（除 429）说明请求本身不会因重试变好
			return nil, errors.Wrap(domain.ErrListingUnavailable, statusErr.Error())
		}
		// 网络错误、超时、429、5xx 都算平台瞬时故障
		return nil, errors.Wrap(domain.ErrPlatformUnavailable, err.Error())
	}

	switch resp.Status {
	case "ok":
		return &port.PurchaseResult{OrderRef: resp.OrderRef, FinalPrice: resp.FinalPrice, Fee: resp.Fee}, nil
	case "unavailable":
		return &port.PurchaseResult{FinalPrice: resp.FinalPrice}, domain.ErrListingUnavailable
	case "price_changed":
		return &port.PurchaseResult{FinalPrice: resp.FinalPrice}, domain.ErrPriceChanged
	default:
		return nil, errors.Wrapf(domain.ErrPlatformUnavailable, "unexpected platform status %q: %s", resp.Status, resp.Message)
	}
}
