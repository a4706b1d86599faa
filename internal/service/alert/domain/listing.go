// internal/service/alert/domain/listing.go
package domain

import "time"

// Listing 是抓取管道产出的一条票源快照，撮合阶段只读不改。
// 价格是一个区间：同一票源下可能有多档座位。
type Listing struct {
	ID        string
	Platform  string
	Title     string
	Venue     string
	Location  string
	Section   string
	MinPrice  float64
	MaxPrice  float64
	Currency  string
	Quantity  int
	EventDate *time.Time
	Available bool
	URL       string
	FetchedAt time.Time
}
