// internal/service/alert/infrastructure/adapter/feed_http_adapter.go
package adapter

import (
	"context"
	"net/url"
	"time"

	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/service/alert/domain"
)

// FeedHttpAdapter 实现 port.ListingFeed，从抓取服务的 HTTP 接口拉取新票源。
type FeedHttpAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewFeedHttpAdapter(client *httpclient.Client, baseURL string) *FeedHttpAdapter {
	return &FeedHttpAdapter{client: client, baseURL: baseURL}
}

type listingDTO struct {
	ID        string     `json:"id"`
	Platform  string     `json:"platform"`
	Title     string     `json:"title"`
	Venue     string     `json:"venue"`
	Location  string     `json:"location"`
	Section   string     `json:"section"`
	MinPrice  float64    `json:"minPrice"`
	MaxPrice  float64    `json:"maxPrice"`
	Currency  string     `json:"currency"`
	Quantity  int        `json:"quantity"`
	EventDate *time.Time `json:"eventDate"`
	Available bool       `json:"available"`
	URL       string     `json:"url"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

type feedResponse struct {
	Listings []listingDTO `json:"listings"`
}

func (a *FeedHttpAdapter) FetchSince(ctx context.Context, since time.Time) ([]*domain.Listing, error) {
	var resp feedResponse
	params := url.Values{"since": []string{since.UTC().Format(time.RFC3339)}}
	if err := a.client.Get(ctx, a.baseURL+"/api/v1/listings", params, &resp); err != nil {
		return nil, err
	}

	listings := make([]*domain.Listing, 0, len(resp.Listings))
	for _, d := range resp.Listings {
		listings = append(listings, &domain.Listing{
			ID: d.ID, Platform: d.Platform, Title: d.Title,
			Venue: d.Venue, Location: d.Location, Section: d.Section,
			MinPrice: d.MinPrice, MaxPrice: d.MaxPrice, Currency: d.Currency,
			Quantity: d.Quantity, EventDate: d.EventDate,
			Available: d.Available, URL: d.URL, FetchedAt: d.FetchedAt,
		})
	}
	return listings, nil
}
