// Command invision annotates surveillance video with a multimodal model and
// checks the description against the camera's room rules.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
