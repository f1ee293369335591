package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// JSONの構造化ロガー。金額まわりの変更は全ステップこれで残す。
func New(level string) *logrus.Logger {
	logg := logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	logg.SetLevel(lv)

	return logg
}
