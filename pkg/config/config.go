// Copyright 2026 educhain-devs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Content    ContentConfig    `mapstructure:"content"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "24h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "24h"
	AdminEmail    string `mapstructure:"admin_email"`     // admin-email 头校验用
	AuthRateRPS   int    `mapstructure:"auth_rate_rps"`   // 认证路由限流（每秒请求数），<=0 不限流
	AuthRateBurst int    `mapstructure:"auth_rate_burst"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Record RecordConfig `mapstructure:"record"`
	Cache  CacheConfig  `mapstructure:"cache"`
}

// RecordConfig 记录存储配置（机构/证书等实体）
type RecordConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// CacheConfig 验证结果缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"` // 如 "30s"，空则默认 30s
}

// LedgerConfig 账本客户端配置
// Type 在启动时选定实现：gateway（真实链网关）或 fake（确定性假实现，测试/演示用）
type LedgerConfig struct {
	Type            string `mapstructure:"type"`              // gateway | fake | 空（未配置，降级）
	Endpoint        string `mapstructure:"endpoint"`          // 链网关地址，如 http://chain-gw:7545
	ContractAddress string `mapstructure:"contract_address"`  // 注册表合约地址（响应中回显）
	SignerSecretKey string `mapstructure:"signer_secret_key"` // secrets store 中签名凭证的 key 名
	CallTimeout     string `mapstructure:"call_timeout"`      // 单次账本调用超时，如 "30s"
	SettleInterval  string `mapstructure:"settle_interval"`   // 批量同步时两次写之间的落块等待，如 "2s"
}

// ContentConfig 内容（证书工件）存储配置
type ContentConfig struct {
	Type      string `mapstructure:"type"`       // pinata | memory | 空（未配置时用 mock hash）
	Endpoint  string `mapstructure:"endpoint"`   // pinning 网关地址
	APIKeyRef string `mapstructure:"api_key"`    // secrets store 中 API key 的 key 名
	SecretRef string `mapstructure:"secret_key"` // secrets store 中 API secret 的 key 名
	Gateway   string `mapstructure:"gateway"`    // 公共读取网关，如 https://gateway.pinata.cloud/ipfs
}

// SecretsConfig Secret 存储配置
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 后端配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中形如 ${ENV_VAR} 的引用（DSN、JWT key 等敏感项）
func replaceEnvVars(config *Config) {
	config.Storage.Record.DSN = expandEnv(config.Storage.Record.DSN)
	config.Storage.Cache.Password = expandEnv(config.Storage.Cache.Password)
	config.API.Middleware.JWTKey = expandEnv(config.API.Middleware.JWTKey)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
}

func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}")); val != "" {
			return val
		}
	}
	return v
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}
