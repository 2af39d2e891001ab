package util

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetLogLevel(t *testing.T) {
	//Arrange
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"info":  logrus.InfoLevel,
		"other": logrus.InfoLevel,
		"":      logrus.InfoLevel,
		"ERROR": logrus.ErrorLevel,
	}

	for level, expected := range cases {
		logger := logrus.New()

		//Act
		SetLogLevel(logger, level)

		//Assert
		assert.Equal(t, expected, logger.GetLevel(), "level %q", level)
	}
}
