package trip

import "github.com/sirupsen/logrus"

// log 行程模块的日志记录器
var log = logrus.WithField("module", "trip")
