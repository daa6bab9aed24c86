package main

import (
	"github.com/opendocs/chatstream/cmd"
	"github.com/opendocs/chatstream/internal/logging"
	"github.com/opendocs/chatstream/internal/status"
)

func main() {
	defer logging.RecoverPanic("main", func() {
		status.Error("Application terminated due to unhandled panic")
	})

	if err := logging.InitService(); err != nil {
		panic(err)
	}

	cmd.Execute()
}
