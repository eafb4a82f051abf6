package main

import (
	"nasdaq-drop-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
