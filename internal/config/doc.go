// Package config 负责加载与校验 AgentPay 各服务共享的 YAML 配置。
package config
