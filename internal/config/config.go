package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type MeteorGridConfig struct {
	// Server Configuration
	Host     string `mapstructure:"host" default:"0.0.0.0" description:"the admin host address"`
	Port     string `mapstructure:"port" default:"7653" description:"the admin port"`
	LogLevel string `mapstructure:"logLevel" default:"info" description:"Log Level"`
	NodeName string `mapstructure:"nodeName" default:"" description:"Name of this node, generated when empty"`

	Clustering  ClusteringConfig  `mapstructure:"clustering"`
	Functional  FunctionalConfig  `mapstructure:"functional"`
	Locking     LockingConfig     `mapstructure:"locking"`
	Indexing    IndexingConfig    `mapstructure:"indexing"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

type ClusteringConfig struct {
	Mode          string              `mapstructure:"mode" default:"replicated" description:"replicated or distributed"`
	NumOwners     int                 `mapstructure:"numOwners" default:"2" description:"Owners per segment in distributed mode"`
	NumSegments   int                 `mapstructure:"numSegments" default:"64" description:"Number of hash segments"`
	VirtualNodes  int                 `mapstructure:"virtualNodes" default:"150" description:"Virtual nodes per member on the hash ring"`
	AsyncBackups  int                 `mapstructure:"asyncBackups" default:"4" description:"Workers sending async replication"`
	StateTransfer StateTransferConfig `mapstructure:"stateTransfer"`
}

type StateTransferConfig struct {
	ChunkSize        int           `mapstructure:"chunkSize" default:"512" description:"Entries per state transfer chunk"`
	EntriesPerSecond int           `mapstructure:"entriesPerSecond" default:"0" description:"Transfer throttle, 0 disables it"`
	Timeout          time.Duration `mapstructure:"timeout" default:"4m" description:"Maximum duration of a rebalance"`
}

type FunctionalConfig struct {
	WaitMode     string `mapstructure:"waitMode" default:"blocking" description:"blocking or non-blocking"`
	AsyncWorkers int    `mapstructure:"asyncWorkers" default:"16" description:"Workers of the async executor"`
}

type LockingConfig struct {
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout" default:"10s" description:"Key lock acquisition timeout"`
}

type IndexingConfig struct {
	Enabled  bool                 `mapstructure:"enabled" default:"false" description:"Whether entities are indexed"`
	Entities []IndexedEntityConfig `mapstructure:"entities"`
}

type IndexedEntityConfig struct {
	Name          string   `mapstructure:"name"`
	TextFields    []string `mapstructure:"textFields"`
	KeywordFields []string `mapstructure:"keywordFields"`
}

type PersistenceConfig struct {
	Type    string            `mapstructure:"type" default:"none" description:"none, memory, file or object"`
	Preload bool              `mapstructure:"preload" default:"false" description:"Load all stored entries on start"`
	File    FileStoreConfig   `mapstructure:"file"`
	Object  ObjectStoreConfig `mapstructure:"object"`
}

type FileStoreConfig struct {
	Path        string `mapstructure:"path" default:"meteorgrid.log"`
	Compression string `mapstructure:"compression" default:"none" description:"none, zstd or lz4"`
}

type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix" default:"entries"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

var Config *MeteorGridConfig

const configPath = "./"

func LoadConfig() {
	cfg, err := Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		panic(err)
	}
	Config = cfg
}

// Load reads config.json from dir, falling back to defaults for missing keys.
func Load(dir string) (*MeteorGridConfig, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		slog.Warn("No config file found, using defaults", "path", dir)
	}

	return unmarshal(v)
}

// Default returns the configuration made only of defaults and environment overrides.
func Default() *MeteorGridConfig {
	cfg, err := unmarshal(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*MeteorGridConfig, error) {
	var cfg MeteorGridConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("METEORGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", "7653")
	v.SetDefault("logLevel", "info")
	v.SetDefault("nodeName", "")

	v.SetDefault("clustering.mode", ModeReplicated)
	v.SetDefault("clustering.numOwners", 2)
	v.SetDefault("clustering.numSegments", 64)
	v.SetDefault("clustering.virtualNodes", 150)
	v.SetDefault("clustering.stateTransfer.chunkSize", 512)
	v.SetDefault("clustering.stateTransfer.entriesPerSecond", 0)
	v.SetDefault("clustering.stateTransfer.timeout", 4*time.Minute)

	v.SetDefault("functional.waitMode", WaitModeBlocking)
	v.SetDefault("functional.asyncWorkers", 16)

	v.SetDefault("locking.acquireTimeout", 10*time.Second)

	v.SetDefault("indexing.enabled", false)

	v.SetDefault("persistence.type", PersistenceNone)
	v.SetDefault("persistence.preload", false)
	v.SetDefault("persistence.file.path", "meteorgrid.log")
	v.SetDefault("persistence.file.compression", "none")
	v.SetDefault("persistence.object.prefix", "entries")
	return v
}
