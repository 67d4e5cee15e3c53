package aoi

import "github.com/sirupsen/logrus"

// log AOI模块的日志记录器
var log = logrus.WithField("module", "aoi")
