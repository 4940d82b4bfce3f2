// Motorbeat — Beat на базе Elastic Beats v7 (libbeat) для каскадного регулятора двигателя.
// Выполняет цикл motorctl и публикует записи циклов как события.
package main

import (
	"os"

	"github.com/elastic/beats/v7/libbeat/cmd"
	"github.com/elastic/beats/v7/libbeat/cmd/instance"
	"github.com/shiwa/motorctl/motorbeat/beater"
)

func main() {
	rootCmd := cmd.GenRootCmdWithSettings(beater.New, instance.Settings{
		Name: "motorbeat",
	})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
