package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供分区/策略/命中状态字段，供拦截器请求日志复用。
func RequestFields(partition, strategy, path string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"partition": partition,
		"strategy":  strategy,
		"path":      path,
		"cache_hit": cacheHit,
	}
}

// LifecycleFields 提供安装/激活阶段日志字段，version 为分区版本号。
func LifecycleFields(action, version string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"version": version,
	}
}
