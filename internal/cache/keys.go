package cache

import "time"

// Fast-store key layout. Other services read these keys, so the formats are
// fixed.
const (
	KeyOrdersToday = "stat:orders:today"
	KeySalesToday  = "stat:sales:today"

	BoardDailySale   = "rank:daily:sale"
	BoardWeeklySale  = "rank:weekly:sale"
	BoardMonthlySale = "rank:monthly:sale"
	BoardHotProducts = "hot:products"

	ProductCacheNamespace = "product:cache:"

	FieldTotalAmount = "total_amount"
	FieldOrderCount  = "order_count"
)

func StockKey(productID string) string { return "stock:" + productID }

func FlashStockKey(saleID, productID string) string {
	return "seckill_stock:" + saleID + "_" + productID
}

func StockLockKey(productID string) string { return "lock:stock:" + productID }

func FlashStockLockKey(saleID, productID string) string {
	return "lock:seckill_stock:" + saleID + "_" + productID
}

func CartKey(userID string) string { return "cart:" + userID }

func OrderStatusKey(orderID string) string { return "order:status:" + orderID }

// OrderStatsKey marks an order as counted in the dashboards.
func OrderStatsKey(orderID string) string { return "order:stats:" + orderID }

// OrderCompletionKey marks an order as counted in the completion leaderboards.
func OrderCompletionKey(orderID string) string { return "order:stats:" + orderID + ":completed" }

// DashboardKey returns the daily dashboard hash for the day of t.
func DashboardKey(t time.Time) string { return "dashboard:" + t.Format("20060102") }
