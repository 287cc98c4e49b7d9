// Package config loads and validates the controller's YAML
// configuration: the inspection sections (PLC, cameras, detection,
// fallback, policy, storage) plus the service sections (server,
// logging, Postgres, MinIO, NATS) a deployable instance needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the controller's full persisted configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	PLC       PLCConfig       `yaml:"plc"`
	Cameras   CamerasConfig   `yaml:"cameras"`
	Detection DetectionConfig `yaml:"detection"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Policy    PolicyConfig    `yaml:"policy"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	MinIO     MinIOConfig     `yaml:"minio"`
	NATS      NATSConfig      `yaml:"nats"`
}

// ServerConfig is the operator-facing HTTP/WebSocket surface backing
// the operator UI.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PLCProtocol names a vendor protocol dialect. Only the dialect's
// address-string shape (see FormatAddress in internal/plc) and this
// enumerated tag live in this codebase; the wire protocols themselves
// are the vendor adapters' concern.
type PLCProtocol string

const (
	ProtocolMitsubishiMcAscii  PLCProtocol = "MitsubishiMcAscii"
	ProtocolMitsubishiMcBinary PLCProtocol = "MitsubishiMcBinary"
	ProtocolModbusTcp          PLCProtocol = "ModbusTcp"
	ProtocolSiemensS7          PLCProtocol = "SiemensS7"
	ProtocolOmronFins          PLCProtocol = "OmronFins"
)

// PLCConfig describes the PLC transport and trigger/result register
// addresses.
type PLCConfig struct {
	Protocol       PLCProtocol `yaml:"protocol"`
	IP             string      `yaml:"ip"`
	Port           int         `yaml:"port"`
	TriggerAddress string      `yaml:"trigger_address"`
	ResultAddress  string      `yaml:"result_address"`
	PollMS         int         `yaml:"poll_ms"`
	TriggerDelayMS int         `yaml:"trigger_delay_ms"`
}

// CameraConfig is one configured camera.
type CameraConfig struct {
	ID           string `yaml:"id"`
	DisplayName  string `yaml:"display_name"`
	SerialNumber string `yaml:"serial_number"`
	Exposure     int    `yaml:"exposure"`
	Gain         int    `yaml:"gain"`
	Enabled      bool   `yaml:"enabled"`
}

// CamerasConfig lists the known cameras and which one is active.
type CamerasConfig struct {
	Cameras        []CameraConfig `yaml:"cameras"`
	ActiveCameraID string         `yaml:"active_camera_id"`
}

// TaskType uses the numeric encoding long-deployed config files carry
// (0 Classify, 1 Detect, 3 Segment, 5 Pose, 6 OBB); the gaps are
// retired task codes.
type TaskType int

const (
	TaskClassify TaskType = 0
	TaskDetect   TaskType = 1
	TaskSegment  TaskType = 3
	TaskPose     TaskType = 5
	TaskOBB      TaskType = 6
)

// DetectionConfig holds the primary model's inference thresholds and
// device placement.
type DetectionConfig struct {
	ModelPath     string   `yaml:"model_path"`
	LabelsPath    string   `yaml:"labels_path"`
	Confidence    float64  `yaml:"confidence"`
	IoU           float64  `yaml:"iou"`
	GlobalIoU     bool     `yaml:"global_iou"`
	ModelVersion  int      `yaml:"model_version"`
	TaskType      TaskType `yaml:"task_type"`
	KeypointCount int      `yaml:"keypoint_count"`
	EnableGPU     bool     `yaml:"enable_gpu"`
	GPUIndex      int      `yaml:"gpu_index"`
	InputW        int      `yaml:"input_w"`
	InputH        int      `yaml:"input_h"`
	InputName     string   `yaml:"input_name"`
}

// FallbackConfig configures the auxiliary cascade tiers.
type FallbackConfig struct {
	Aux1Path         string `yaml:"aux1_path"`
	Aux1LabelsPath   string `yaml:"aux1_labels_path"`
	Aux2Path         string `yaml:"aux2_path"`
	Aux2LabelsPath   string `yaml:"aux2_labels_path"`
	EnableMultiModel bool   `yaml:"enable_multi_model"`
}

// PolicyConfig configures the target-label/count pass criterion and
// the Orchestrator's retry policy.
type PolicyConfig struct {
	TargetLabel     string `yaml:"target_label"`
	TargetCount     int    `yaml:"target_count"`
	MaxRetryCount   int    `yaml:"max_retry_count"`
	RetryIntervalMS int    `yaml:"retry_interval_ms"`
}

// StorageConfig configures the image/log persistence root and
// retention window.
type StorageConfig struct {
	StorageRoot string `yaml:"storage_root"`
	RetainDays  int    `yaml:"retain_days"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	QueueDepth  int    `yaml:"queue_depth"`
}

// DatabaseConfig is the Postgres statistics-ledger connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MinIOConfig configures the optional off-box archive mirror.
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// NATSConfig configures the internal event bus bridge.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// Load reads a YAML config file, applies INSPECT_* environment
// variable overrides, then fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.PLC.PollMS == 0 {
		cfg.PLC.PollMS = 500
	}
	if cfg.PLC.TriggerDelayMS == 0 {
		cfg.PLC.TriggerDelayMS = 800
	}
	if cfg.Detection.Confidence == 0 {
		cfg.Detection.Confidence = 0.25
	}
	if cfg.Detection.IoU == 0 {
		cfg.Detection.IoU = 0.45
	}
	if cfg.Detection.InputW == 0 {
		cfg.Detection.InputW = 640
	}
	if cfg.Detection.InputH == 0 {
		cfg.Detection.InputH = 640
	}
	if cfg.Detection.InputName == "" {
		cfg.Detection.InputName = "images"
	}
	if cfg.Policy.MaxRetryCount == 0 {
		cfg.Policy.MaxRetryCount = 1
	}
	if cfg.Policy.RetryIntervalMS == 0 {
		cfg.Policy.RetryIntervalMS = 2000
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = 30
	}
	if cfg.Storage.JPEGQuality == 0 {
		cfg.Storage.JPEGQuality = 70
	}
	if cfg.Storage.QueueDepth == 0 {
		cfg.Storage.QueueDepth = 64
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INSPECT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INSPECT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("INSPECT_PLC_IP"); v != "" {
		cfg.PLC.IP = v
	}
	if v := os.Getenv("INSPECT_PLC_PROTOCOL"); v != "" {
		cfg.PLC.Protocol = PLCProtocol(v)
	}
	if v := os.Getenv("INSPECT_DETECTION_MODEL_PATH"); v != "" {
		cfg.Detection.ModelPath = v
	}
	if v := os.Getenv("INSPECT_FALLBACK_AUX1_PATH"); v != "" {
		cfg.Fallback.Aux1Path = v
	}
	if v := os.Getenv("INSPECT_FALLBACK_AUX2_PATH"); v != "" {
		cfg.Fallback.Aux2Path = v
	}
	if v := os.Getenv("INSPECT_POLICY_TARGET_LABEL"); v != "" {
		cfg.Policy.TargetLabel = v
	}
	if v := os.Getenv("INSPECT_STORAGE_ROOT"); v != "" {
		cfg.Storage.StorageRoot = v
	}
	if v := os.Getenv("INSPECT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("INSPECT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("INSPECT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("INSPECT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("INSPECT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("INSPECT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("INSPECT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("INSPECT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("INSPECT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
}

// ActiveCamera returns the configured active camera, if any.
func (c CamerasConfig) ActiveCamera() (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.ID == c.ActiveCameraID {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

// ParseTaskType maps a task name to its TaskType, for config files
// that prefer names over the numeric codes.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(s) {
	case "classify":
		return TaskClassify, nil
	case "detect":
		return TaskDetect, nil
	case "segment":
		return TaskSegment, nil
	case "pose":
		return TaskPose, nil
	case "obb":
		return TaskOBB, nil
	default:
		return 0, fmt.Errorf("unknown task type %q", s)
	}
}
