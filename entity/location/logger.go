package location

import "github.com/sirupsen/logrus"

// log 位置解析模块的日志记录器
var log = logrus.WithField("module", "location")
