package provider

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "provider")
