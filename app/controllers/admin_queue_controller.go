package controllers

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/andreluizvr/textora/app/repository"
	"github.com/andreluizvr/textora/internal/pkg/jobqueue"
)

// AdminQueueController exposes the background job queue state for operators
type AdminQueueController struct {
	queueRepo repository.QueueRepository
}

// NewAdminQueueController creates a new admin queue controller with repository
func NewAdminQueueController(queueRepo repository.QueueRepository) *AdminQueueController {
	return &AdminQueueController{
		queueRepo: queueRepo,
	}
}

// HandleQueueStats returns job queue counters and list sizes.
func (aqc *AdminQueueController) HandleQueueStats(c *fiber.Ctx) error {
	queue := jobqueue.GetManager().GetQueue()
	ctx := c.Context()

	stats, err := queue.GetJobStats(ctx)
	if err != nil && err != redis.Nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load job stats")
	}

	pending, _ := queue.GetQueueSize(ctx)
	processing, _ := queue.GetProcessingSize(ctx)

	counts := make(map[string]int64, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}

	return c.JSON(fiber.Map{
		"running":         jobqueue.GetManager().IsRunning(),
		"pending_size":    pending,
		"processing_size": processing,
		"stats":           counts,
	})
}

// HandleQueueKeys lists job-related cache keys with their TTLs.
func (aqc *AdminQueueController) HandleQueueKeys(c *fiber.Ctx) error {
	keys, err := aqc.queueRepo.FindKeysByPatterns([]string{"job:*", "job_queue", "job_processing", "job_stats"})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to scan cache keys")
	}
	sort.Strings(keys)

	items := make([]fiber.Map, 0, len(keys))
	for _, key := range keys {
		item := fiber.Map{"key": key}
		if ttl, err := aqc.queueRepo.GetTTL(key); err == nil {
			item["ttl_seconds"] = int64(ttl.Seconds())
		}
		if strings.HasPrefix(key, "job_queue") || strings.HasPrefix(key, "job_processing") {
			if length, err := aqc.queueRepo.GetListLength(key); err == nil {
				item["length"] = length
			}
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{"keys": items})
}

// HandleQueueKeyDelete removes a cache entry. Used to clear poisoned jobs.
func (aqc *AdminQueueController) HandleQueueKeyDelete(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing key")
	}

	deleted, err := aqc.queueRepo.DeleteKey(key)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete key")
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
