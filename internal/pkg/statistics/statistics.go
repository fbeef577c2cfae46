package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/cache"
	"github.com/andreluizvr/textora/internal/pkg/database"
)

const (
	CacheKeyUsers         = "statistics:users:total"
	CacheKeyActiveSubs    = "statistics:subscriptions:active"
	CacheKeyPaymentsDaily = "statistics:payments:daily:%s" // Format with date YYYY-MM-DD
	CacheExpiration       = 30 * time.Minute
)

// StatisticsData holds the headline numbers for the admin overview.
type StatisticsData struct {
	TotalUsers          int
	ActiveSubscriptions int
	TodayPayments       int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached numbers are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached numbers when the interval elapsed.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next UpdateCacheIfNeeded to refresh.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recounts users, active subscriptions and today's
// approved payments and stores the results in the cache.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var activeSubs int64
	if err := db.Model(&models.Subscription{}).Where("status = ?", models.SubscriptionStatusActive).Count(&activeSubs).Error; err != nil {
		log.Printf("Error counting active subscriptions: %v", err)
		return err
	}

	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	var todayPayments int64
	if err := db.Model(&models.PaymentTransaction{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&todayPayments).Error; err != nil {
		log.Printf("Error counting today's payments: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyActiveSubs, strconv.FormatInt(activeSubs, 10), CacheExpiration); err != nil {
		log.Printf("Error caching active subscriptions: %v", err)
		return err
	}

	dailyKey := fmt.Sprintf(CacheKeyPaymentsDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayPayments, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's payments: %v", err)
		return err
	}

	return nil
}

// GetTotalUsers returns the total number of users from cache or database.
func GetTotalUsers() int {
	val, err := cache.Get(CacheKeyUsers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting total users: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total users: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetActiveSubscriptions returns the number of active subscriptions from
// cache or database.
func GetActiveSubscriptions() int {
	val, err := cache.Get(CacheKeyActiveSubs)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.Subscription{}).Where("status = ?", models.SubscriptionStatusActive).Count(&count).Error; err != nil {
			log.Printf("Error counting active subscriptions: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyActiveSubs, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching active subscriptions: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetTodayPayments returns the number of payment transactions recorded today
// from cache or database.
func GetTodayPayments() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyPaymentsDaily, today)

	val, err := cache.Get(dailyKey)
	if err != nil {
		var count int64
		db := database.GetDB()
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)

		if err := db.Model(&models.PaymentTransaction{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&count).Error; err != nil {
			log.Printf("Error counting today's payments: %v", err)
			return 0
		}

		if err := cache.Set(dailyKey, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching today's payments: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetStatisticsData collects all numbers for the admin overview.
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:          GetTotalUsers(),
		ActiveSubscriptions: GetActiveSubscriptions(),
		TodayPayments:       GetTodayPayments(),
	}
}
