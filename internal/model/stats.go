package model

// Dashboard is the real-time sales summary for one day.
type Dashboard struct {
	Date          string  `json:"date"`
	TotalAmount   float64 `json:"total_amount"`
	OrderCount    int64   `json:"order_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// RankEntry is one leaderboard row. Rank is 1-based.
type RankEntry struct {
	Rank   int64   `json:"rank"`
	Member string  `json:"product_id"`
	Score  float64 `json:"score"`
}

// StockInfo describes the live counter of one product.
type StockInfo struct {
	ProductID string `json:"product_id"`
	Stock     int64  `json:"stock"`
	Exists    bool   `json:"exists"`
}
