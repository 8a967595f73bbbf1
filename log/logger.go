package log

import (
	"os"
	"path/filepath"

	"github.com/maleexcel/welldyne-app/conf"
	"github.com/sirupsen/logrus"
)

var (
	Trigger     logrus.FieldLogger
	Eligibility logrus.FieldLogger
	Feedback    logrus.FieldLogger
	Worker      logrus.FieldLogger
)

func init() {
	Trigger = Logger(logrus.New(), conf.GetEnv("WELLDYNE_TRIGGER_LOG"),
		"trigger", conf.GetEnv("ENVIRONMENT"))
	Eligibility = Logger(logrus.New(), conf.GetEnv("WELLDYNE_ELIGIBILITY_LOG"),
		"eligibility", conf.GetEnv("ENVIRONMENT"))
	Feedback = Logger(logrus.New(), conf.GetEnv("WELLDYNE_FEEDBACK_LOG"),
		"feedback", conf.GetEnv("ENVIRONMENT"))
	Worker = Logger(logrus.New(), conf.GetEnv("WELLDYNE_WORKER_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}
