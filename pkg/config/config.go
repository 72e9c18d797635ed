package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_resolution"
)

// Config holds the settings of every kiemwatch command
type Config struct {
	InputFile  string
	OutputFile string
	LogLevel   string

	Cluster ClusterConfig

	FetchTimeout        time.Duration
	ContinuousMode      bool
	PollInterval        time.Duration
	LegacyRoleRefLookup bool

	MetricsPort int
	Sensitivity access_resolution.Sensitivity

	Elasticsearch  ElasticsearchConfig
	ShipInterval   time.Duration
	ShipContinuous bool

	DB DBConfig
}

// ClusterConfig selects how the control plane is reached
type ClusterConfig struct {
	Type                 string // LOCAL, EKS, AKS or GKE
	Name                 string
	Kubeconfig           string
	AWSRegion            string
	AzureCredentialsFile string
	AzureSubscriptionID  string
	AzureResourceGroup   string
	GCPCredentialsFile   string
	GCPProjectID         string
	GCPRegion            string
}

type ElasticsearchConfig struct {
	URL   string
	Index string
}

// DBConfig enables the durable access store when Driver is set
type DBConfig struct {
	Driver string // "", mysql or sqlite
	DSN    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input_file", "input.json")
	v.SetDefault("output_file", "/tmp/access_logs.jsonl")
	v.SetDefault("log_level", "info")

	v.SetDefault("cluster_type", "LOCAL")
	v.SetDefault("cluster_name", "")
	v.SetDefault("kubeconfig", "")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("azure_credentials_file", "")
	v.SetDefault("azure_subscription_id", "")
	v.SetDefault("azure_resource_group", "")
	v.SetDefault("gcp_credentials_file", "")
	v.SetDefault("gcp_project_id", "")
	v.SetDefault("gcp_region", "")

	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("continuous_mode", false)
	v.SetDefault("poll_interval", "5m")
	v.SetDefault("legacy_roleref_lookup", false)

	v.SetDefault("metrics_port", 8000)
	v.SetDefault("sensitive_namespaces", strings.Join(access_resolution.DefaultSensitiveNamespaces, ","))
	v.SetDefault("sensitive_resources", strings.Join(access_resolution.DefaultSensitiveResources, ","))

	v.SetDefault("elasticsearch_url", "")
	v.SetDefault("elasticsearch_index", "k8s-access-logs")
	v.SetDefault("ship_interval", "30s")
	v.SetDefault("ship_continuous", true)

	v.SetDefault("db_driver", "")
	v.SetDefault("db_dsn", "")
}

// Load reads configuration from defaults, an optional config file and the environment
// (environment wins).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		InputFile:  v.GetString("input_file"),
		OutputFile: v.GetString("output_file"),
		LogLevel:   v.GetString("log_level"),
		Cluster: ClusterConfig{
			Type:                 strings.ToUpper(v.GetString("cluster_type")),
			Name:                 v.GetString("cluster_name"),
			Kubeconfig:           v.GetString("kubeconfig"),
			AWSRegion:            v.GetString("aws_region"),
			AzureCredentialsFile: v.GetString("azure_credentials_file"),
			AzureSubscriptionID:  v.GetString("azure_subscription_id"),
			AzureResourceGroup:   v.GetString("azure_resource_group"),
			GCPCredentialsFile:   v.GetString("gcp_credentials_file"),
			GCPProjectID:         v.GetString("gcp_project_id"),
			GCPRegion:            v.GetString("gcp_region"),
		},
		FetchTimeout:        v.GetDuration("fetch_timeout"),
		ContinuousMode:      v.GetBool("continuous_mode"),
		PollInterval:        v.GetDuration("poll_interval"),
		LegacyRoleRefLookup: v.GetBool("legacy_roleref_lookup"),
		MetricsPort:         v.GetInt("metrics_port"),
		Sensitivity: access_resolution.Sensitivity{
			Namespaces: getList(v, "sensitive_namespaces"),
			Resources:  getList(v, "sensitive_resources"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:   v.GetString("elasticsearch_url"),
			Index: v.GetString("elasticsearch_index"),
		},
		ShipInterval:   v.GetDuration("ship_interval"),
		ShipContinuous: v.GetBool("ship_continuous"),
		DB: DBConfig{
			Driver: strings.ToLower(v.GetString("db_driver")),
			DSN:    v.GetString("db_dsn"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.InputFile == "" {
		return errors.New("INPUT_FILE is required")
	}
	if c.OutputFile == "" {
		return errors.New("OUTPUT_FILE is required")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.ShipInterval <= 0 {
		return errors.New("SHIP_INTERVAL must be positive")
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT %d out of range", c.MetricsPort)
	}
	switch c.Cluster.Type {
	case "LOCAL", "EKS", "AKS", "GKE":
	default:
		return fmt.Errorf("unsupported cluster type: %s", c.Cluster.Type)
	}
	switch c.DB.Driver {
	case "":
	case "mysql", "sqlite":
		if c.DB.DSN == "" {
			return errors.New("DB_DSN is required when DB_DRIVER is set")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DB.Driver)
	}
	return nil
}

// lists come either as YAML sequences from the config file or comma separated from the env
func getList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []interface{}, []string:
		raw = v.GetStringSlice(key)
	default:
		raw = strings.Split(fmt.Sprint(val), ",")
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
