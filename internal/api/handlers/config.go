package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/inspectline/internal/config"
)

// ConfigHandler serves the read-only subset of the running
// configuration the operator UI needs (policy/detection/PLC knobs),
// withholding credentials.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"plc": gin.H{
			"protocol":         h.cfg.PLC.Protocol,
			"trigger_address":  h.cfg.PLC.TriggerAddress,
			"result_address":   h.cfg.PLC.ResultAddress,
			"poll_ms":          h.cfg.PLC.PollMS,
			"trigger_delay_ms": h.cfg.PLC.TriggerDelayMS,
		},
		"detection": gin.H{
			"model_path":    h.cfg.Detection.ModelPath,
			"confidence":    h.cfg.Detection.Confidence,
			"iou":           h.cfg.Detection.IoU,
			"global_iou":    h.cfg.Detection.GlobalIoU,
			"model_version": h.cfg.Detection.ModelVersion,
			"task_type":     h.cfg.Detection.TaskType,
			"enable_gpu":    h.cfg.Detection.EnableGPU,
		},
		"fallback": gin.H{
			"enable_multi_model": h.cfg.Fallback.EnableMultiModel,
			"aux1_configured":    h.cfg.Fallback.Aux1Path != "",
			"aux2_configured":    h.cfg.Fallback.Aux2Path != "",
		},
		"policy": gin.H{
			"target_label":      h.cfg.Policy.TargetLabel,
			"target_count":      h.cfg.Policy.TargetCount,
			"max_retry_count":   h.cfg.Policy.MaxRetryCount,
			"retry_interval_ms": h.cfg.Policy.RetryIntervalMS,
		},
		"storage": gin.H{
			"retain_days":  h.cfg.Storage.RetainDays,
			"jpeg_quality": h.cfg.Storage.JPEGQuality,
			"queue_depth":  h.cfg.Storage.QueueDepth,
		},
	})
}
